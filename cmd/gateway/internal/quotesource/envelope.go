package quotesource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// globalQuoteResponse mirrors the provider's GLOBAL_QUOTE answer. Note and Information
// are how the provider signals throttling on an otherwise successful HTTP response.
type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
	ErrorMessage string            `json:"Error Message"`
}

const (
	fieldOpen   = "02. open"
	fieldHigh   = "03. high"
	fieldLow    = "04. low"
	fieldPrice  = "05. price"
	fieldVolume = "06. volume"
)

func decodeEnvelope(body []byte) (globalQuoteResponse, error) {
	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("malformed envelope: %w", err)
	}
	return resp, nil
}

func (r globalQuoteResponse) throttled() bool {
	if len(r.GlobalQuote) > 0 {
		return false
	}
	return r.Note != "" || strings.Contains(strings.ToLower(r.Information), "rate limit") ||
		strings.Contains(strings.ToLower(r.Information), "call frequency")
}

// parseOptional returns nil for missing or unparsable optional fields.
func parseOptional(fields map[string]string, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}
