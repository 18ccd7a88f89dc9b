package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/votestream/internal/cache"
)

const (
	userAgent = "votestream-go"

	// Upper bound on how much of an error body ends up in a failure message.
	maxErrorBody = 256
)

// Request describes one HTTP call relative to the transport's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64 // 0 disables client-side pacing
	HTTPClient    *http.Client
}

// Transport performs authenticated JSON requests and classifies failures.
type Transport struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTransport builds a Transport. When cfg.HTTPClient is nil a pooled client
// with transparent gzip decoding is created.
func NewTransport(cfg TransportConfig, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		}
		httpClient = &http.Client{
			Transport: gzhttp.Transport(transport),
			Timeout:   timeout,
		}
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond * 2)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Transport{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		limiter:    limiter,
		logger:     logger,
	}
}

// Token returns the configured API token.
func (t *Transport) Token() string {
	return t.token
}

// Do executes req and returns the JSON response body.
//
// Empty successful bodies (204, or 200 with no content) are returned as "{}".
// Non-2xx statuses return a *StatusError, successful responses that are not
// JSON return an error wrapping ErrNotJSON.
func (t *Transport) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	// Same encoding as the cache key, so a cached entry names the exact URL.
	target := t.baseURL + cache.Key(req.Path, req.Query)

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if t.token != "" {
		httpReq.Header.Set("Authorization", t.token)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	t.logger.Debug("requesting",
		zap.String("method", method),
		zap.String("url", target),
	)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	// Read body before closing for error messages
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading response: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			statusErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		t.logger.Debug("request failed",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
		)
		return nil, statusErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: content type %q", ErrNotJSON, resp.Header.Get("Content-Type"))
	}

	return raw, nil
}

// errorMessage pulls a readable message out of an error body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// parseRetryAfter handles the delta-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
