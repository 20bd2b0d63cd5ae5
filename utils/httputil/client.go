// Package httputil carries small HTTP client-side helpers shared by the
// bulk API plumbing.
package httputil

import (
	"io"
	"net/http"
)

// SuccessStatus reports whether the status code is in the 2xx range.
func SuccessStatus(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// RetriableStatus reports whether the status code signals a transient
// server-side condition:
//
//	* 5xx - all server errors
//	* 408 - request timeout
//	* 429 - too many requests.
//
// The bulk client itself never retries, it only classifies. Callers with a
// retry policy of their own can lean on this.
func RetriableStatus(statusCode int) bool {
	if statusCode < 400 {
		return false
	}
	if statusCode >= 500 {
		return true
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// CloseResponse closes the response's body. But reads at least some of the body so if it's
// small the underlying TCP connection will be re-used. No need to check for errors: if it
// fails, the Transport won't reuse it anyway.
func CloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		const maxBodySlurpSize = 2 << 10 // 2KB
		_, _ = io.CopyN(io.Discard, resp.Body, maxBodySlurpSize)
		_ = resp.Body.Close()
	}
}
