package llm

import (
	"errors"
	"fmt"
	"net/http"
)

func errUnsupported(what string) error {
	return fmt.Errorf("%s not supported by this provider", what)
}

// statusCodeOf extracts an HTTP status code from SDK error types when
// present, defaulting to 500 (treated as transient) so an error of unknown
// shape still gets retried rather than silently dropped.
func statusCodeOf(err error) int {
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return http.StatusInternalServerError
}
