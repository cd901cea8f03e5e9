// internal/omniparser/client.go
package omniparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoElements is returned when the service parsed the screenshot but found nothing.
var ErrNoElements = errors.New("element detection returned no elements")

type parseRequest struct {
	Base64Image string `json:"base64_image"`
}

// element is one detected UI element. BBox is [x1, y1, x2, y2] as fractions
// of the image size.
type element struct {
	Type          string     `json:"type"`
	BBox          [4]float64 `json:"bbox"`
	Interactivity bool       `json:"interactivity"`
	Content       string     `json:"content"`
}

type parseResponse struct {
	ParsedContentList []element `json:"parsed_content_list"`
	Latency           float64   `json:"latency"`
}

// Client calls an element-detection service over HTTP. Requests are rate
// limited and retried with exponential backoff on transient failures.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

var _ backend.Annotator = (*Client)(nil)

// NewClient creates a client for the configured endpoint.
func NewClient(cfg config.OmniParserConfig, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid omniparser endpoint %q", cfg.Endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		endpoint:   u.String(),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		timeout:    timeout,
		logger:     logger.Named("omniparser"),
	}, nil
}

// Annotate implements backend.Annotator. screenshot may carry a data URI prefix.
func (c *Client) Annotate(ctx context.Context, screenshot string) (*schemas.OmniParserResult, error) {
	image := strings.TrimPrefix(screenshot, backend.PNGDataURIPrefix)
	if image == "" {
		return nil, errors.New("empty screenshot")
	}
	body, err := json.Marshal(parseRequest{Base64Image: image})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(2*c.timeout),
	)
	var policy backoff.BackOff = b
	if c.maxRetries >= 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.maxRetries))
	}

	parsed, err := backoff.RetryWithData(func() (*parseResponse, error) {
		return c.parse(ctx, body)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	if len(parsed.ParsedContentList) == 0 {
		return nil, ErrNoElements
	}
	c.logger.Debug("Screenshot annotated.",
		zap.Int("elements", len(parsed.ParsedContentList)),
		zap.Float64("latency_s", parsed.Latency))
	return toResult(parsed.ParsedContentList), nil
}

// parse performs one request. Errors that retrying cannot fix are permanent.
func (c *Client) parse(ctx context.Context, body []byte) (*parseResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Network error during element detection, retrying.", zap.Error(err))
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("omniparser returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var parsed parseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
	}
	return &parsed, nil
}

// toResult numbers the elements from zero and converts corner boxes into
// [x, y, width, height].
func toResult(elements []element) *schemas.OmniParserResult {
	result := &schemas.OmniParserResult{
		ParsedContentList: make([]string, 0, len(elements)),
		LabelCoordinates:  make(map[string][4]float64, len(elements)),
	}
	for i, el := range elements {
		id := strconv.Itoa(i)
		label := strings.TrimSpace(el.Content)
		if label == "" {
			label = el.Type
		}
		result.ParsedContentList = append(result.ParsedContentList, fmt.Sprintf("ID %s: %s", id, label))
		x1, y1, x2, y2 := el.BBox[0], el.BBox[1], el.BBox[2], el.BBox[3]
		result.LabelCoordinates[id] = [4]float64{x1, y1, x2 - x1, y2 - y1}
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
