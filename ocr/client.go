// Package ocr is a client for the German-OCR document analysis API.
//
// A document is submitted with POST /v1/analyze and, on the asynchronous
// path, polled with GET /v1/jobs/{id} until the job completes or fails:
//
//	creds, err := ocr.ResolveCredentials("", "") // from GERMAN_OCR_API_KEY / _SECRET
//	client, err := ocr.NewClient(creds)
//	res, err := client.Analyze(ctx, ocr.AnalyzeRequest{Document: ocr.FromPath("invoice.pdf")})
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL        = "https://api.german-ocr.de"
	DefaultRequestTimeout = 120 * time.Second
	Version               = "0.3.0"

	analyzePath = "/v1/analyze"
	jobsPath    = "/v1/jobs/"
)

// Client talks to the German-OCR API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	policy     RetryPolicy
	userAgent  string
	onStatus   func(Job)
}

type clientOptions struct {
	baseURL   string
	base      *http.Client
	timeout   time.Duration
	policy    *RetryPolicy
	userAgent string
	onStatus  func(Job)
}

// Option configures a Client.
type Option func(*clientOptions)

// WithBaseURL points the client at another deployment, e.g. a local gateway.
func WithBaseURL(raw string) Option {
	return func(o *clientOptions) { o.baseURL = raw }
}

// WithHTTPClient sets the underlying client whose transport carries requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.base = c }
}

// WithRequestTimeout bounds every single HTTP exchange.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetryPolicy replaces DefaultRetryPolicy for Wait.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *clientOptions) { o.policy = &p }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithStatusHook registers fn to be called with every job snapshot observed
// while polling.
func WithStatusHook(fn func(Job)) Option {
	return func(o *clientOptions) { o.onStatus = fn }
}

// NewClient constructs a Client. Credentials are validated here so that a
// malformed key never reaches the network.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	o := clientOptions{
		baseURL:   strings.TrimSpace(os.Getenv(EnvBaseURL)),
		timeout:   DefaultRequestTimeout,
		userAgent: "german-ocr-go/" + Version,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL == "" {
		o.baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(o.baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &PreconditionError{Field: "base_url", Err: fmt.Errorf("invalid base url %q", o.baseURL)}
	}
	policy := DefaultRetryPolicy()
	if o.policy != nil {
		policy = o.policy.normalized()
	}

	var baseTransport http.RoundTripper = http.DefaultTransport
	if o.base != nil && o.base.Transport != nil {
		baseTransport = o.base.Transport
	}
	tokens := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.BearerToken(),
		TokenType:   "Bearer",
	})

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   o.timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: baseTransport},
		},
		policy:    policy,
		userAgent: o.userAgent,
		onStatus:  o.onStatus,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// RetryPolicy returns the polling policy used by Wait.
func (c *Client) RetryPolicy() RetryPolicy {
	return c.policy
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// Analyze submits a document and, on the asynchronous path, waits for the job
// to finish. The synchronous 200 response short-circuits polling.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (Result, error) {
	sub, err := c.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if sub.Kind() == SubmissionResult {
		return *sub.Result, nil
	}
	job, err := c.Wait(ctx, sub.Job.JobID)
	if err != nil {
		return Result{}, err
	}
	res, err := FormatJob(job)
	if err != nil {
		return Result{}, err
	}
	if res.ModelUsed == "" {
		res.ModelUsed = sub.Job.Model
	}
	return res, nil
}

func decodeJSON(op string, body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return &ProtocolError{Op: op, Reason: "malformed JSON", Err: err}
	}
	return nil
}
