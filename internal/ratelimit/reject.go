package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Rejection is the JSON body of a 429 response.
type Rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DefaultRejection carries no detail about limits or budget.
var DefaultRejection = Rejection{
	Error:   "too many requests",
	Message: "Slow down and try again shortly.",
}

// retryAfter is the whole number of seconds until reset, rounded up, at least 1.
func retryAfter(now, reset time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func writeRejection(w http.ResponseWriter, secs int, body Rejection) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}
