package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/openreach/browserpilot/api/schemas"
)

// jsonAPI is the codec for every request and response body.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultDialTimeout  = 15 * time.Second
	defaultKeepAlive    = 30 * time.Second
	defaultIdleTimeout  = 90 * time.Second
	defaultMaxIdleConns = 20
	sessionsPath        = "/browser/sessions"
	maxErrorBodyBytes   = 64 * 1024
)

// Client is the typed REST surface of the pilot service. It is safe for
// concurrent use; it holds no session state of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client) error

// WithHTTPClient swaps the underlying http.Client, typically for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithLogger attaches a logger. The client logs at Debug only.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = logger.Named("remote")
		return nil
	}
}

// WithSOCKSProxy routes all requests through a SOCKS5 proxy address.
func WithSOCKSProxy(addr string) Option {
	return func(c *Client) error {
		dialer, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAlive,
		})
		if err != nil {
			return fmt.Errorf("configuring socks proxy: %w", err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks proxy dialer does not support context dialing")
		}
		transport := c.transport()
		transport.DialContext = ctxDialer.DialContext
		return nil
	}
}

// NewClient builds a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   defaultDialTimeout,
					KeepAlive: defaultKeepAlive,
				}).DialContext,
				MaxIdleConns:    defaultMaxIdleConns,
				IdleConnTimeout: defaultIdleTimeout,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) transport() *http.Transport {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		return t
	}
	t := &http.Transport{}
	c.httpClient.Transport = t
	return t
}

// do issues one request and decodes the response into out (when non-nil).
// Non-2xx responses become a *RequestError with the message extracted from
// the error body contract.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := jsonAPI.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("remote call",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &RequestError{StatusCode: resp.StatusCode, Message: extractMessage(raw)}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := jsonAPI.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// -- Typed endpoints --

// CreateSession starts a new remote browser session.
func (c *Client) CreateSession(ctx context.Context, opts schemas.CreateSessionOptions) (*schemas.Session, error) {
	var session schemas.Session
	if err := c.do(ctx, http.MethodPost, sessionsPath, opts, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches the current descriptor for a session.
func (c *Client) GetSession(ctx context.Context, id string) (*schemas.Session, error) {
	var session schemas.Session
	if err := c.do(ctx, http.MethodGet, sessionsPath+"/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession closes a remote browser session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionsPath+"/"+id, nil, nil)
}

// Navigate points the session's page at a new URL.
func (c *Client) Navigate(ctx context.Context, id string, req schemas.NavigateRequest) error {
	return c.do(ctx, http.MethodPost, sessionsPath+"/"+id+"/navigate", req, nil)
}

// AXTree fetches the full accessibility snapshot for a session.
func (c *Client) AXTree(ctx context.Context, id string, includeHidden bool) (*schemas.AXTree, error) {
	var tree schemas.AXTree
	path := sessionsPath + "/" + id + "/ax-tree?include_hidden=" + strconv.FormatBool(includeHidden)
	if err := c.do(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// Click performs a click action in the session.
func (c *Client) Click(ctx context.Context, id string, req schemas.ClickRequest) (*schemas.ActionResult, error) {
	var result schemas.ActionResult
	if err := c.do(ctx, http.MethodPost, sessionsPath+"/"+id+"/actions/click", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TypeText performs a type action in the session.
func (c *Client) TypeText(ctx context.Context, id string, req schemas.TypeRequest) (*schemas.ActionResult, error) {
	var result schemas.ActionResult
	if err := c.do(ctx, http.MethodPost, sessionsPath+"/"+id+"/actions/type", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Extract pulls text or data out of the page without mutating it.
func (c *Client) Extract(ctx context.Context, id string, req schemas.ExtractRequest) (*schemas.ActionResult, error) {
	var result schemas.ActionResult
	if err := c.do(ctx, http.MethodPost, sessionsPath+"/"+id+"/actions/extract", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecutePlan submits a declarative plan and returns the aggregated record of
// the server-driven attempt/verify/retry loop.
func (c *Client) ExecutePlan(ctx context.Context, id string, plan schemas.Plan) (*schemas.PlanExecution, error) {
	var exec schemas.PlanExecution
	if err := c.do(ctx, http.MethodPost, sessionsPath+"/"+id+"/actions/plan", plan, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}
