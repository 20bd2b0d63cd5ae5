package sfbulk

import (
	"net/http"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
)

const (
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConnsPerHost   = 50
	defaultMaxConnsPerHost       = 100
)

// getDefaultHTTPClient returns an http.Client with standard configuration.
// There is no overall request timeout: result segment downloads are
// arbitrarily long, so only the wait for response headers is bounded.
func getDefaultHTTPClient(conf *config.Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          defaultMaxConnsPerHost,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: conf.GetDurationVar(int64(defaultResponseHeaderTimeout/time.Second), time.Second, "SFBulk.httpResponseHeaderTimeout"),
		// Disable compression to prevent BREACH attacks
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
	}
}
