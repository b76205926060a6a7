// Package client is the HTTP client for the market API used by the CLI and the delivery loop.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultRetryMaxElapsed = 5 * time.Second

	breakerMaxFailures = 5
	breakerOpenTimeout = 15 * time.Second
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("market api unavailable")

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token() string
}

// Options client settings. Zero values fall back to defaults.
type Options struct {
	BaseURL         string
	Timeout         time.Duration // per call, including retries
	RetryMaxElapsed time.Duration // GET retries only; 0 uses the default, <0 disables
	HTTPClient      *http.Client
	Tokens          TokenSource
}

// APIError an error envelope returned by the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("market api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("market api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to the market API
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	tokens  TokenSource
	timeout time.Duration
	retry   time.Duration
}

// New creates a Client
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	c := &Client{
		base:    base,
		http:    opts.HTTPClient,
		tokens:  opts.Tokens,
		timeout: opts.Timeout,
		retry:   opts.RetryMaxElapsed,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retry == 0 {
		c.retry = DefaultRetryMaxElapsed
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-api",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

// envelope mirrors the server's {success,data,meta,error} body
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type rawResponse struct {
	body   []byte
	status int
}

// serverError 5xx responses; they count against the breaker and are retried for GETs
type serverError struct{ resp *rawResponse }

func (e *serverError) Error() string { return "server error " + strconv.Itoa(e.resp.status) }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()
	requestID := uuid.NewString()

	var resp *rawResponse
	attempt := func() error {
		res, err := c.breaker.Execute(func() (any, error) {
			r, err := c.roundTrip(ctx, method, target.String(), requestID, payload)
			if err != nil {
				return nil, err
			}
			return r, nil
		})
		if res != nil {
			resp = res.(*rawResponse)
		}
		var srvErr *serverError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &srvErr):
			resp = srvErr.resp
			return err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrUnavailable)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		default:
			return err
		}
	}

	var err error
	if method == http.MethodGet && c.retry > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.MaxElapsedTime = c.retry
		err = backoff.Retry(attempt, backoff.WithContext(b, ctx))
	} else {
		err = attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	var srvErr *serverError
	if err != nil && !errors.As(err, &srvErr) {
		return err
	}
	return decode(resp, out)
}

func (c *Client) roundTrip(ctx context.Context, method, target, requestID string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	raw := &rawResponse{status: res.StatusCode, body: data}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, &serverError{resp: raw}
	}
	return raw, nil
}

func decode(resp *rawResponse, out any) error {
	if resp == nil {
		return errors.New("market api: empty response")
	}
	if resp.status == http.StatusNoContent {
		return nil
	}

	var env envelope
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &env); err != nil && resp.status < http.StatusBadRequest {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.status >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{Status: resp.status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Register creates an account; the result carries a token like Login
func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile behind the current token
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns the caller's conversations, most recently active first
func (c *Client) ListConversations(ctx context.Context) ([]*Conversation, error) {
	var out []*Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrCreateConversation opens the conversation with another user.
// existing is true when it was already there.
func (c *Client) GetOrCreateConversation(ctx context.Context, otherUserID uint64) (*Conversation, bool, error) {
	var out getOrCreateResult
	body := map[string]uint64{"otherUserId": otherUserID}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", nil, body, &out); err != nil {
		return nil, false, err
	}
	return out.Conversation, out.Existing, nil
}

// ListMessages fetches one page of a conversation, oldest first
func (c *Client) ListMessages(ctx context.Context, conversationID uint64, page, pageSize int) (*MessagePage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}

	var out MessagePage
	path := "/api/conversations/" + strconv.FormatUint(conversationID, 10) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage appends a message. It is never retried.
func (c *Client) SendMessage(ctx context.Context, conversationID uint64, content string) (*Message, error) {
	var out Message
	path := "/api/conversations/" + strconv.FormatUint(conversationID, 10) + "/messages"
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
