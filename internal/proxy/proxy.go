// Package proxy is the edge cache in front of the USGS API. A request is
// either served verbatim from the cache or fetched once upstream, stored in
// the background and, for feature collections, persisted in the background.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/watkajtys/earthquake-sub007/internal/adapter/cache"
	"github.com/watkajtys/earthquake-sub007/internal/adapter/usgs"
	"github.com/watkajtys/earthquake-sub007/internal/detached"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

// Route is the HTTP path the proxy is served under.
const Route = "/api/usgs-proxy"

// Fetcher performs the raw upstream request.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (usgs.Response, error)
}

// Upserter persists features.
type Upserter interface {
	Upsert(ctx context.Context, features []domain.Feature) domain.UpsertCount
}

// Response is a proxied response. It is also the cached entry format.
type Response struct {
	Status       int    `json:"status"`
	ContentType  string `json:"contentType"`
	CacheControl string `json:"cacheControl"`
	Body         []byte `json:"body"`
	Cached       bool   `json:"-"`
}

// Proxy serves upstream responses through a cache.Store.
type Proxy struct {
	fetcher  Fetcher
	store    cache.Store
	upserter Upserter
	tasks    *detached.Group
	ttl      int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Proxy. upserter may be nil, in which case fresh responses are
// cached but not persisted.
func New(fetcher Fetcher, store cache.Store, upserter Upserter, tasks *detached.Group, ttlSeconds int, logger *slog.Logger, metrics *observability.Metrics) *Proxy {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	return &Proxy{
		fetcher:  fetcher,
		store:    store,
		upserter: upserter,
		tasks:    tasks,
		ttl:      ttlSeconds,
		logger:   logger,
		metrics:  metrics,
	}
}

// TTL returns the s-maxage in seconds attached to fresh responses.
func (p *Proxy) TTL() int { return p.ttl }

// CacheKey is the request URI of the proxy route for apiURL. HTTP and
// in-process callers share entries through it.
func CacheKey(apiURL string) string {
	return Route + "?apiUrl=" + url.QueryEscape(apiURL)
}

// Serve returns the response for apiURL, consulting the cache under cacheKey
// first. Cache read and write failures degrade to an uncached fetch; upstream
// failures are returned as *domain.Error and nothing is stored.
func (p *Proxy) Serve(ctx context.Context, cacheKey, apiURL string) (Response, error) {
	if apiURL == "" {
		p.metrics.ProxyRequests.WithLabelValues("bad_request").Inc()
		return Response{}, &domain.Error{Kind: domain.KindConfiguration, Message: "Missing apiUrl query parameter"}
	}

	if resp, ok := p.lookup(ctx, cacheKey); ok {
		p.metrics.ProxyRequests.WithLabelValues("hit").Inc()
		return resp, nil
	}

	upstream, err := p.fetcher.Get(ctx, apiURL)
	if err != nil {
		p.metrics.ProxyRequests.WithLabelValues("upstream_error").Inc()
		return Response{}, err
	}
	p.metrics.ProxyRequests.WithLabelValues("miss").Inc()

	resp := Response{
		Status:       upstream.Status,
		ContentType:  upstream.ContentType,
		CacheControl: fmt.Sprintf("s-maxage=%d", p.ttl),
		Body:         upstream.Body,
	}
	p.storeAsync(ctx, cacheKey, resp)
	if p.upserter != nil {
		p.upsertAsync(ctx, apiURL, resp.Body)
	}
	return resp, nil
}

// FetchFeed serves apiURL through the cache and decodes the body.
func (p *Proxy) FetchFeed(ctx context.Context, apiURL string) (domain.FeatureCollection, error) {
	resp, err := p.Serve(ctx, CacheKey(apiURL), apiURL)
	if err != nil {
		return domain.FeatureCollection{}, err
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(resp.Body, &fc); err != nil {
		return domain.FeatureCollection{}, &domain.Error{Kind: domain.KindParse, Message: fmt.Sprintf("decode feed: %v", err), Err: err}
	}
	return fc, nil
}

func (p *Proxy) lookup(ctx context.Context, key string) (Response, bool) {
	data, found, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("cache read failed, fetching upstream", "key", key, "error", err)
		return Response{}, false
	}
	if !found {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		p.logger.Warn("corrupt cache entry, fetching upstream", "key", key, "error", err)
		return Response{}, false
	}
	resp.Cached = true
	return resp, true
}

func (p *Proxy) storeAsync(ctx context.Context, key string, resp Response) {
	entry, err := json.Marshal(resp)
	if err != nil {
		p.logger.Error("encode cache entry", "key", key, "error", err)
		return
	}
	ttl := time.Duration(p.ttl) * time.Second
	p.tasks.Go(ctx, "cache-write", func(ctx context.Context) error {
		if err := p.store.Set(ctx, key, entry, ttl); err != nil {
			p.metrics.CacheWriteErrors.Inc()
			return fmt.Errorf("cache write %s: %w", key, err)
		}
		return nil
	})
}

func (p *Proxy) upsertAsync(ctx context.Context, apiURL string, body []byte) {
	p.tasks.Go(ctx, "upsert", func(ctx context.Context) error {
		var fc domain.FeatureCollection
		if err := json.Unmarshal(body, &fc); err != nil {
			// Not a collection; nothing to persist.
			return nil
		}
		if fc.Type != "FeatureCollection" || len(fc.Features) == 0 {
			return nil
		}
		count := p.upserter.Upsert(ctx, fc.Features)
		p.logger.Info("proxied features persisted",
			"url", apiURL,
			"success", count.SuccessCount,
			"errors", count.ErrorCount,
		)
		return nil
	})
}
