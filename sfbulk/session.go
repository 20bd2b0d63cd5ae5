package sfbulk

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/utils/httputil"
)

var (
	envelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	partnerNamespace  = "urn:partner.soap.sforce.com"
)

type loginEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	EnvNS   string   `xml:"xmlns:soapenv,attr"`
	URNNS   string   `xml:"xmlns:urn,attr"`
	Body    loginBody
}

type loginBody struct {
	XMLName xml.Name `xml:"soapenv:Body"`
	Login   loginRequest
}

type loginRequest struct {
	XMLName  xml.Name `xml:"urn:login"`
	Username string   `xml:"urn:username"`
	Password string   `xml:"urn:password"`
}

type loginResponseEnvelope struct {
	Body struct {
		Result loginResult `xml:"loginResponse>result"`
		Fault  *soapFault  `xml:"Fault"`
	} `xml:"Body"`
}

type loginResult struct {
	ServerURL string `xml:"serverUrl"`
	SessionID string `xml:"sessionId"`
	UserInfo  struct {
		SessionSecondsValid int `xml:"sessionSecondsValid"`
	} `xml:"userInfo"`
}

type soapFault struct {
	FaultCode   string      `xml:"faultcode"`
	FaultString string      `xml:"faultstring"`
	Detail      faultDetail `xml:"detail"`
}

type faultDetail struct {
	Fault apiFault `xml:",any"`
}

// apiFault is the error document of both the login service (inside a SOAP
// fault detail) and the async API (as response root on non-2xx).
type apiFault struct {
	ExceptionCode    string `xml:"exceptionCode"`
	ExceptionMessage string `xml:"exceptionMessage"`
}

// session is the authenticated context every async API call runs under.
// secondsValid is recorded for observability but expiry is not enforced,
// a client is expected to live well within one session window.
type session struct {
	sessionID    string
	baseURL      string
	jobURL       string
	secondsValid int
}

// Login authenticates eagerly. Every other operation logs in on demand,
// exactly once per client instance.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	sess, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	c.session = sess
	return sess, nil
}

func (c *Client) login(ctx context.Context) (*session, error) {
	env := loginEnvelope{
		EnvNS: envelopeNamespace,
		URNNS: partnerNamespace,
		Body: loginBody{Login: loginRequest{
			Username: c.cfg.Username,
			Password: c.cfg.Password + c.cfg.SecurityToken,
		}},
	}
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling login request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/services/Soap/u/%s", strings.TrimSuffix(c.cfg.LoginURL, "/"), c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeXML)
	req.Header.Set("SOAPAction", "login")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.statsFactory.NewTaggedStat(statAPIRequestTime, stats.TimerType, stats.Tags{"op": "login"}).Since(start)
	if err != nil {
		return nil, &APIError{Category: CategoryNetwork, Message: "login request failed", Err: err}
	}
	defer func() { httputil.CloseResponse(resp) }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Category: CategoryNetwork, Message: "reading login response", Err: err}
	}

	var envResp loginResponseEnvelope
	parseErr := xml.Unmarshal(body, &envResp)
	if parseErr == nil && envResp.Body.Fault != nil {
		f := envResp.Body.Fault
		code, msg := f.Detail.Fault.ExceptionCode, f.Detail.Fault.ExceptionMessage
		if code == "" {
			code = f.FaultCode
		}
		if msg == "" {
			msg = f.FaultString
		}
		return nil, &AuthError{ExceptionCode: code, ExceptionMessage: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Category:   categorizeStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
	}
	if parseErr != nil {
		return nil, &AuthError{ExceptionCode: "MALFORMED_RESPONSE", ExceptionMessage: parseErr.Error()}
	}

	res := envResp.Body.Result
	if res.SessionID == "" || res.ServerURL == "" {
		return nil, &AuthError{ExceptionCode: "MALFORMED_RESPONSE", ExceptionMessage: "login response missing sessionId or serverUrl"}
	}
	u, err := url.Parse(res.ServerURL)
	if err != nil {
		return nil, &AuthError{ExceptionCode: "MALFORMED_RESPONSE", ExceptionMessage: fmt.Sprintf("parsing serverUrl: %v", err)}
	}

	sess := &session{
		sessionID:    res.SessionID,
		baseURL:      fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		secondsValid: res.UserInfo.SessionSecondsValid,
	}
	sess.jobURL = fmt.Sprintf("%s/services/async/%s/job", sess.baseURL, c.apiVersion)

	c.logger.Infon("logged in",
		logger.NewStringField("host", u.Host),
		logger.NewStringField("apiVersion", c.apiVersion),
		logger.NewIntField("sessionSecondsValid", int64(sess.secondsValid)),
	)
	return sess, nil
}
