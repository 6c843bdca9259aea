package generator

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	throttleNote = "Thank you for using this API! Our standard API call frequency is 5 calls per minute and 500 calls per day."
	priceFormat  = 'f'
)

// Server answers GLOBAL_QUOTE requests the way the real provider does, including its
// habit of reporting throttling inside a 200 response.
type Server struct {
	walker        *PriceWalker
	symbols       map[string]bool
	apiKey        string
	throttleEvery int64
	calls         atomic.Int64
	logger        *zap.Logger
}

// NewServer builds the simulator. An empty apiKey accepts any non-empty key;
// throttleEvery <= 0 never throttles.
func NewServer(logger *zap.Logger, walker *PriceWalker, symbols []string, apiKey string, throttleEvery int) *Server {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[s] = true
	}
	return &Server{
		walker:        walker,
		symbols:       known,
		apiKey:        apiKey,
		throttleEvery: int64(throttleEvery),
		logger:        logger,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/query", s.Query)
	return r
}

func (s *Server) Query(c *gin.Context) {
	n := s.calls.Add(1)

	key := c.Query("apikey")
	if key == "" || (s.apiKey != "" && key != s.apiKey) {
		c.JSON(http.StatusOK, gin.H{"Error Message": "the parameter apikey is invalid or missing"})
		return
	}
	if c.Query("function") != "GLOBAL_QUOTE" {
		c.JSON(http.StatusOK, gin.H{"Error Message": "Invalid API call. Please retry or visit the documentation."})
		return
	}
	if s.throttleEvery > 0 && n%s.throttleEvery == 0 {
		s.logger.Debug("Throttling request", zap.Int64("call", n))
		c.JSON(http.StatusOK, gin.H{"Note": throttleNote})
		return
	}

	symbol := c.Query("symbol")
	if !s.symbols[symbol] {
		c.JSON(http.StatusOK, gin.H{"Global Quote": gin.H{}})
		return
	}

	q := s.walker.Next(symbol)
	s.logger.Debug("Served quote", zap.String("symbol", symbol), zap.Float64("price", q.Price))

	c.JSON(http.StatusOK, gin.H{"Global Quote": gin.H{
		"01. symbol":             symbol,
		"02. open":               formatPrice(*q.Open),
		"03. high":               formatPrice(*q.High),
		"04. low":                formatPrice(*q.Low),
		"05. price":              formatPrice(q.Price),
		"06. volume":             strconv.FormatFloat(*q.Volume, priceFormat, 0, 64),
		"07. latest trading day": q.Time().UTC().Format("2006-01-02"),
		"08. previous close":     formatPrice(*q.Open),
		"09. change":             formatPrice(q.Price - *q.Open),
		"10. change percent":     strconv.FormatFloat((q.Price-*q.Open)/(*q.Open)*100, priceFormat, 4, 64) + "%",
	}})
}

// Calls reports how many requests were served.
func (s *Server) Calls() int64 { return s.calls.Load() }

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, priceFormat, 4, 64)
}
