package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/pipeline"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

type Handler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	started  time.Time
}

type notificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Uptime      string `json:"uptime"`
}

type quotesResponse struct {
	Quotes []models.Quote `json:"quotes"`
}

type notifyResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func NewHandler(p *pipeline.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{pipeline: p, logger: logger, started: time.Now()}
}

// NewRouter wires the HTTP surface: the push endpoint and a small JSON API.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/quotes", h.Quotes)
		api.POST("/notifications", h.Notify)
	}
	r.GET("/ws", h.Stream)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Subscribers: h.pipeline.Subscribers(),
		Uptime:      time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) Quotes(c *gin.Context) {
	c.JSON(http.StatusOK, quotesResponse{Quotes: h.pipeline.Quotes()})
}

func (h *Handler) Notify(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" && req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title or message required"})
		return
	}

	res := h.pipeline.Notify(req.Title, req.Message)
	c.JSON(http.StatusAccepted, notifyResponse{Sent: res.Sent, Failed: res.Failed})
}

// Stream upgrades to a websocket and registers the connection with the pipeline.
func (h *Handler) Stream(c *gin.Context) {
	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := gateway.NewClient(conn, h.pipeline.Hub(), h.logger.Named("client"))
	client.Start()
	if err := h.pipeline.Accept(client); err != nil {
		h.logger.Debug("Connection refused", zap.String("client", client.ID()), zap.Error(err))
	}
}
