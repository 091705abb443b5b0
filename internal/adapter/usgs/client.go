package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

// maxBodyBytes bounds a single upstream response. A full month feed is ~10MB.
const maxBodyBytes = 64 << 20

// Response is a successful raw upstream response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client fetches GeoJSON from the USGS API. Every failure is returned as a
// *domain.Error; the client never panics to its caller.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a USGS client with the given request timeout and User-Agent.
func NewClient(timeout time.Duration, userAgent string, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		logger:     logger,
		metrics:    metrics,
	}
}

// Get issues a GET for rawURL and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, rawURL)
	c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(outcomeOf(err)).Inc()
		c.logger.Warn("usgs request failed", "url", rawURL, "error", err)
		return Response{}, err
	}
	c.metrics.UpstreamRequests.WithLabelValues("success").Inc()
	return resp, nil
}

// FetchFeed fetches and decodes a GeoJSON FeatureCollection.
func (c *Client) FetchFeed(ctx context.Context, rawURL string) (domain.FeatureCollection, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(resp.Body, &fc); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("decode_error").Inc()
		return domain.FeatureCollection{}, &domain.Error{
			Kind:    domain.KindParse,
			Message: fmt.Sprintf("decode USGS response: %v", err),
			Err:     err,
		}
	}
	return fc, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, &domain.Error{Kind: domain.KindConfiguration, Message: fmt.Sprintf("invalid upstream URL: %v", err), Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, &domain.Error{Kind: domain.KindUpstreamNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &domain.Error{
			Kind:    domain.KindUpstreamStatus,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Error fetching data from USGS API: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Err:     fmt.Errorf("upstream body: %s", body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, &domain.Error{Kind: domain.KindUpstreamNetwork, Message: fmt.Sprintf("read body: %v", err), Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return Response{Status: resp.StatusCode, ContentType: contentType, Body: body}, nil
}

func outcomeOf(err error) string {
	switch domain.KindOf(err) {
	case domain.KindUpstreamStatus:
		return "status_error"
	case domain.KindParse:
		return "decode_error"
	default:
		return "network_error"
	}
}
