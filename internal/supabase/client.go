package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const defaultHeartbeat = 25 * time.Second

// ErrMissingFilter is returned by Update and Delete called without filters
var ErrMissingFilter = errors.New("at least one filter is required")

// APIError is an error response from the REST or storage API
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, msg)
}

// Client talks to one Supabase project. A nil *Client is valid: every
// operation on it is a no-op.
type Client struct {
	baseURL    *url.URL
	key        string
	httpClient *http.Client
	dialer     *websocket.Dialer
	heartbeat  time.Duration
	uploader   Uploader
	s3         *S3Config
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for REST and storage calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDialer sets the websocket dialer used by Subscribe
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHeartbeat sets the realtime heartbeat interval
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) {
		c.heartbeat = d
	}
}

// WithS3 routes uploads through the S3-compatible storage endpoint
func WithS3(cfg S3Config) Option {
	return func(c *Client) {
		c.s3 = &cfg
	}
}

// WithUploader replaces the storage uploader
func WithUploader(u Uploader) Option {
	return func(c *Client) {
		c.uploader = u
	}
}

// New creates a client for the project at rawURL. It returns nil when the
// URL or key are missing or malformed.
func New(rawURL, key string, opts ...Option) *Client {
	rawURL = strings.TrimSpace(rawURL)
	key = strings.TrimSpace(key)
	if rawURL == "" || key == "" {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		log.Error().Str("url", rawURL).Msg("Invalid Supabase URL")
		return nil
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		baseURL:    u,
		key:        key,
		httpClient: http.DefaultClient,
		dialer:     websocket.DefaultDialer,
		heartbeat:  defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.uploader == nil && c.s3 != nil && c.s3.AccessKey != "" {
		up, err := newS3Uploader(context.Background(), c.baseURL, *c.s3)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create S3 uploader, using storage REST API")
		} else {
			c.uploader = up
		}
	}
	if c.uploader == nil {
		c.uploader = &restUploader{c: c}
	}

	return c
}

// URL returns the project URL
func (c *Client) URL() string {
	if c == nil {
		return ""
	}
	return c.baseURL.String()
}

type request struct {
	method      string
	path        []string
	query       url.Values
	body        io.Reader
	contentType string
	headers     map[string]string
}

// do sends req and decodes a JSON response into out when out is not nil
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := c.baseURL.JoinPath(req.path...)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), req.body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("apikey", c.key)
	httpReq.Header.Set("Authorization", "Bearer "+c.key)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", req.method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(data) > 0 {
		// storage errors use "error" and "statusCode" instead of "code"
		var alt struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			if json.Unmarshal(data, &alt) == nil && (alt.Message != "" || alt.Error != "") {
				apiErr.Message = alt.Message
				if apiErr.Message == "" {
					apiErr.Message = alt.Error
				}
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
	}
	return apiErr
}
