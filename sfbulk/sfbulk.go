// Package sfbulk is a client for the Salesforce Bulk API v1: the XML flavor
// where a job is created under /services/async/{version}/job, batches of
// SOQL or CSV are added to it, and results come back as CSV segments.
//
// The client never polls and never retries. Callers drive the poll loop
// with Job.Info and the Succeeded/Failed predicates, then pull merged
// results as a single CSV stream.
package sfbulk

import (
	"net/http"
	"regexp"
	"sync"

	"github.com/rudderlabs/rudder-go-kit/bytesize"
	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
)

// DefaultLoginURL is the production login host.
const DefaultLoginURL = "https://login.salesforce.com"

const defaultAPIVersion = "47.0"

const (
	statAPIRequestTime     = "sfbulk_api_request_time"
	statResultLines        = "sfbulk_result_lines"
	statResultDroppedLines = "sfbulk_result_dropped_lines"
)

// Config carries the login parameters. Username and Password are required.
// SecurityToken, when set, is appended to the password for the login call.
// LoginURL and APIVersion fall back to SFBulk.loginURL and
// SFBulk.apiVersion before their built-in defaults.
type Config struct {
	LoginURL      string
	Username      string
	Password      string
	SecurityToken string
	APIVersion    string
}

// HttpClient is the transport the client calls the service with.
type HttpClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to one Salesforce org. It logs in lazily, once, and is safe
// to share across jobs. The Job handles it hands out are not safe for
// concurrent use.
type Client struct {
	conf         *config.Config
	logger       logger.Logger
	statsFactory stats.Stats
	cfg          Config

	httpClient HttpClient
	apiVersion string

	maxLineBytes   int64
	resolveWorkers int
	junkPatterns   []*regexp.Regexp

	sessionMu sync.Mutex
	session   *session
}

type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(client HttpClient) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithJunkPattern registers an additional line pattern to drop while
// assembling merged results, on top of the built-in ones.
func WithJunkPattern(pattern *regexp.Regexp) Option {
	return func(c *Client) { c.junkPatterns = append(c.junkPatterns, pattern) }
}

// Lines the service interleaves with CSV data in result segments. The
// first is the empty-result marker of query batches, the second the
// comment prefix seen around PK chunked results.
var defaultJunkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^Records not found for this query`),
	regexp.MustCompile(`^#`),
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, c Config, opts ...Option) (*Client, error) {
	if c.Username == "" {
		return nil, &ConfigError{Field: "Username"}
	}
	if c.Password == "" {
		return nil, &ConfigError{Field: "Password"}
	}
	if c.LoginURL == "" {
		c.LoginURL = conf.GetStringVar(DefaultLoginURL, "SFBulk.loginURL")
	}
	apiVersion := c.APIVersion
	if apiVersion == "" {
		apiVersion = conf.GetStringVar(defaultAPIVersion, "SFBulk.apiVersion")
	}

	client := &Client{
		conf:           conf,
		logger:         log.Child("sfbulk"),
		statsFactory:   statsFactory,
		cfg:            c,
		apiVersion:     apiVersion,
		maxLineBytes:   conf.GetInt64Var(10*bytesize.MB, 1, "SFBulk.maxResultLineBytes"),
		resolveWorkers: conf.GetIntVar(1, 1, "SFBulk.segmentResolveWorkers"),
		junkPatterns:   append([]*regexp.Regexp(nil), defaultJunkPatterns...),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = getDefaultHTTPClient(conf)
	}
	return client, nil
}
