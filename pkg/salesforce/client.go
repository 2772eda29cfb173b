// Package salesforce provides read access to the Salesforce REST query API
// with cursor-based pagination.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultAPIVersion is the Salesforce REST API version queries run against.
const DefaultAPIVersion = "v60.0"

// Token is the authentication context for one request: a bearer token and the
// org instance it is valid for.
type Token struct {
	AccessToken string
	InstanceURL string
}

// TokenProvider supplies the current Salesforce token. Token acquisition and
// refresh live behind this interface; the query client never reads ambient
// state itself.
type TokenProvider interface {
	Token(ctx context.Context) (Token, error)
}

// StaticTokenProvider returns a fixed token. Used in tests and for
// pre-authenticated sessions.
type StaticTokenProvider struct {
	Tok Token
}

func (p StaticTokenProvider) Token(context.Context) (Token, error) {
	if p.Tok.AccessToken == "" || p.Tok.InstanceURL == "" {
		return Token{}, eris.New("sf: static token provider not configured")
	}
	return p.Tok, nil
}

// sdkTokenProvider sources tokens from an authenticated go-salesforce/v3
// session, which handles the JWT/password OAuth flows and refresh.
type sdkTokenProvider struct {
	sf *gosf.Salesforce
}

// NewSDKTokenProvider wraps an initialized go-salesforce session as a
// TokenProvider.
func NewSDKTokenProvider(sf *gosf.Salesforce) TokenProvider {
	return &sdkTokenProvider{sf: sf}
}

func (p *sdkTokenProvider) Token(context.Context) (Token, error) {
	tok := Token{
		AccessToken: p.sf.GetAccessToken(),
		InstanceURL: p.sf.GetInstanceUrl(),
	}
	if tok.AccessToken == "" || tok.InstanceURL == "" {
		return Token{}, eris.New("sf: session has no access token")
	}
	return tok, nil
}

// QueryResponse is one page of a SOQL query result.
type QueryResponse struct {
	TotalSize      int             `json:"totalSize"`
	Done           bool            `json:"done"`
	NextRecordsURL string          `json:"nextRecordsUrl"`
	Records        json.RawMessage `json:"records"`
}

// ClientOption configures the query client.
type ClientOption func(*Client)

// WithRateLimit sets a per-second rate limit for API calls. A burst equal to
// the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithTimeout sets the per-request timeout. Exceeding it fails the call, and
// with it the whole enrichment run.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithAPIVersion overrides the REST API version.
func WithAPIVersion(v string) ClientOption {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithRetryAttempts sets the total attempts per query, including the first.
// The default is a single attempt; transient failures (429, 5xx, dropped
// connections) are only retried when the caller opts in here.
func WithRetryAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.retry.maxAttempts = n
		}
	}
}

// Client issues SOQL queries against the Salesforce REST API. Failures
// propagate to the caller; transient failures are retried only when
// WithRetryAttempts enables it.
type Client struct {
	tokens     TokenProvider
	http       *http.Client
	apiVersion string
	limiter    *rate.Limiter
	retry      retryConfig
}

// NewClient creates a query client over the given token provider.
func NewClient(tokens TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		tokens:     tokens,
		http:       &http.Client{Timeout: 30 * time.Second},
		apiVersion: DefaultAPIVersion,
		retry:      defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// QueryPage runs a SOQL query and returns the first page of results.
func (c *Client) QueryPage(ctx context.Context, soql string) (*QueryResponse, error) {
	path := fmt.Sprintf("/services/data/%s/query?q=%s", c.apiVersion, url.QueryEscape(soql))
	return c.getPage(ctx, path)
}

// NextPage follows a continuation cursor returned by a previous page.
func (c *Client) NextPage(ctx context.Context, nextRecordsURL string) (*QueryResponse, error) {
	if nextRecordsURL == "" {
		return nil, eris.New("sf: empty next records url")
	}
	return c.getPage(ctx, nextRecordsURL)
}

func (c *Client) getPage(ctx context.Context, path string) (*QueryResponse, error) {
	return retry(ctx, c.retry, func(ctx context.Context) (*QueryResponse, error) {
		return c.fetchPage(ctx, path)
	})
}

func (c *Client) fetchPage(ctx context.Context, path string) (*QueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: rate limit")
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sf: token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tok.InstanceURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sf: build request")
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sf: query request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{
			code: resp.StatusCode,
			msg:  fmt.Sprintf("sf: query failed: %s: %s", resp.Status, body),
		}
	}

	var page QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "sf: decode query response")
	}
	return &page, nil
}
