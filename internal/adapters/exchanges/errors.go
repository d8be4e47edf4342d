package exchanges

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned when the exchange does not support the requested feature.
	ErrNotSupported = errors.New("operation not supported by exchange")

	// ErrInvalidRequest indicates validation failures before hitting exchange API.
	ErrInvalidRequest = errors.New("invalid exchange request")

	// ErrRateLimited indicates HTTP 429 or throttling.
	ErrRateLimited = errors.New("exchange rate limited the request")
)

// APIError carries the venue's own error code so rejections can be reported verbatim.
type APIError struct {
	Exchange string
	Status   int
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error %d: %s", e.Exchange, e.Code, e.Message)
	}
	return fmt.Sprintf("%s http %d: %s", e.Exchange, e.Status, e.Message)
}

// StatusCode exposes the HTTP status to the retry middleware.
func (e *APIError) StatusCode() int {
	return e.Status
}

// ErrorCode extracts the provider code from err, or "" when err is not an APIError.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != 0 {
			return fmt.Sprint(apiErr.Code)
		}
		return fmt.Sprintf("http_%d", apiErr.Status)
	}
	return ""
}
