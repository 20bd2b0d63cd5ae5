package sfbulk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/utils/httputil"
)

// ErrJobNotCreated is returned by job operations that need a remote job id
// before Create or AddBatch has produced one.
var ErrJobNotCreated = errors.New("job has not been created")

// Error categories attached to APIError.
const (
	CategoryInvalidSession = "InvalidSession"
	CategoryRateLimit      = "RateLimit"
	CategoryBadRequest     = "BadRequest"
	CategoryServerError    = "ServerError"
	CategoryNetwork        = "Network"
	CategoryUnknown        = "Unknown"
)

// ConfigError reports a required construction parameter that is missing or
// unusable. It is raised before any network traffic.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required configuration field %s", e.Field)
}

// AuthError reports a rejected or unusable login exchange.
type AuthError struct {
	ExceptionCode    string
	ExceptionMessage string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: %s: %s", e.ExceptionCode, e.ExceptionMessage)
}

// APIError reports a failed call against the service: either the transport
// gave up, or the service answered outside the 2xx range. The SDK never
// retries; callers decide based on Category and StatusCode.
type APIError struct {
	StatusCode    int
	Category      string
	ExceptionCode string
	Message       string
	Err           error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// JobFailedError carries the last observed status snapshot of a job whose
// counters report failure. The SDK itself never raises it; polling callers
// build it after aborting the job.
type JobFailedError struct {
	Info JobInfo
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %d of %d batches failed, %d records failed",
		e.Info.ID, e.Info.NumberBatchesFailed, e.Info.NumberBatchesTotal, e.Info.NumberRecordsFailed)
}

func categorizeStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized:
		return CategoryInvalidSession
	case statusCode == http.StatusTooManyRequests:
		return CategoryRateLimit
	case statusCode == http.StatusBadRequest:
		return CategoryBadRequest
	case httputil.RetriableStatus(statusCode):
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}
