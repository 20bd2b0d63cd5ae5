package sfbulk

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rudderlabs/rudder-go-kit/bytesize"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/utils/httputil"
)

// maxErrorBody caps how much of a failed response is pulled into the error
// message.
const maxErrorBody = 4 * bytesize.KB

// apiRequest describes one call against the async API. path is relative to
// the session's job collection endpoint.
type apiRequest struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	headers     map[string]string
}

func (c *Client) send(ctx context.Context, r apiRequest) (*http.Response, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.method, sess.jobURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", r.op, err)
	}
	req.Header.Set(headerSession, sess.sessionID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.statsFactory.NewTaggedStat(statAPIRequestTime, stats.TimerType, stats.Tags{"op": r.op}).Since(start)
	if err != nil {
		return nil, &APIError{Category: CategoryNetwork, Message: fmt.Sprintf("%s request failed", r.op), Err: err}
	}
	return resp, nil
}

// doXML performs the call and decodes the response document into out when
// out is non-nil.
func (c *Client) doXML(ctx context.Context, r apiRequest, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer func() { httputil.CloseResponse(resp) }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Category: CategoryNetwork, Message: fmt.Sprintf("reading %s response", r.op), Err: err}
	}
	if !httputil.SuccessStatus(resp.StatusCode) {
		return apiErrorFrom(resp.StatusCode, body)
	}
	if out != nil {
		if err := xml.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshalling %s response: %w", r.op, err)
		}
	}
	return nil
}

// doStream performs the call and hands the raw body to the caller, who
// owns closing it.
func (c *Client) doStream(ctx context.Context, r apiRequest) (io.ReadCloser, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	if !httputil.SuccessStatus(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httputil.CloseResponse(resp)
		return nil, apiErrorFrom(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// apiErrorFrom builds the error for a non-2xx response. The async API
// answers with an exception document; when the body is one, its code and
// message are lifted into the error.
func apiErrorFrom(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Category:   categorizeStatus(statusCode),
		Message:    strings.TrimSpace(string(body)),
	}
	var fault apiFault
	if err := xml.Unmarshal(body, &fault); err == nil && fault.ExceptionCode != "" {
		apiErr.ExceptionCode = fault.ExceptionCode
		apiErr.Message = fault.ExceptionMessage
	}
	return apiErr
}
