// Package collyfetcher implements the listing and detail fetchers using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/steam-catalog-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	ListURL   string
	DetailURL string
	// UserAgents is the pool a client identity is drawn from per request.
	UserAgents  []string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	// CountryCode is sent as the cc query parameter when set.
	CountryCode string
}

// Fetcher implements crawler.ListFetcher and crawler.DetailFetcher.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *crawler.ExponentialRetryPolicy
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// reply is the raw outcome of one HTTP exchange.
type reply struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.ListURL == "" || cfg.DetailURL == "" {
		return nil, errors.New("list and detail urls are required")
	}
	if len(cfg.UserAgents) == 0 {
		return nil, errors.New("at least one user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	// The full listing is several megabytes.
	c.MaxBodySize = 0

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         crawler.NewExponentialRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase),
		sleep:         sleepCtx,
		logger:        logger,
	}, nil
}

// FetchList downloads the full {appid, name} listing. Transient failures are
// retried with the same bounded policy as detail requests.
func (f *Fetcher) FetchList(ctx context.Context) ([]catalog.ListEntry, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		rep, err := f.get(ctx, f.cfg.ListURL)
		if err != nil {
			return nil, err
		}
		entries, res := parseList(rep)
		metrics.ObserveSourceRequest("list", res.Outcome.String(), time.Since(start))
		if res.Outcome == crawler.OutcomeSuccess {
			return entries, nil
		}
		if !f.retry.ShouldRetry(res.Outcome, attempt) {
			return nil, fmt.Errorf("fetch listing after %d attempts: %s", attempt, res.Reason)
		}
		f.logger.Warn("listing fetch failed, retrying", zap.Int("attempt", attempt), zap.String("reason", res.Reason))
		if err := f.sleep(ctx, f.retry.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("fetch listing: %w", err)
		}
	}
}

// FetchDetail looks up one item. TransientError results are retried locally up
// to the attempt budget; RateLimited and NotFound return immediately. The loop
// is bounded and never returns an error, only a tagged result.
func (f *Fetcher) FetchDetail(ctx context.Context, id int64) crawler.FetchResult {
	target := f.detailURL(id)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		var res crawler.FetchResult
		rep, err := f.get(ctx, target)
		if err != nil {
			res = crawler.TransientError(err.Error())
		} else {
			res = parseDetail(id, rep)
		}
		res.Attempts = attempt
		metrics.ObserveSourceRequest("detail", res.Outcome.String(), time.Since(start))
		if !f.retry.ShouldRetry(res.Outcome, attempt) {
			return res
		}
		metrics.ObserveRetry()
		backoff := f.retry.Backoff(attempt)
		f.logger.Debug("detail fetch failed, retrying",
			zap.Int64("item_id", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.String("reason", res.Reason),
		)
		if err := f.sleep(ctx, backoff); err != nil {
			return res
		}
	}
}

func (f *Fetcher) detailURL(id int64) string {
	q := url.Values{}
	q.Set("appids", strconv.FormatInt(id, 10))
	if f.cfg.CountryCode != "" {
		q.Set("cc", f.cfg.CountryCode)
	}
	return f.cfg.DetailURL + "?" + q.Encode()
}

// get performs one GET. The returned error is set only when ctx ends first;
// transport failures are reported in reply.err.
func (f *Fetcher) get(ctx context.Context, target string) (reply, error) {
	var rep reply
	collector := f.buildCollector(ctx, &rep)
	if err := f.runCollector(ctx, collector, target, &rep); err != nil {
		return reply{}, err
	}
	return rep, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, rep *reply) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, f.pickUserAgent(), rep)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, userAgent string, rep *reply) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
		r.Headers.Set("Accept", "application/json")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Referer", "https://store.steampowered.com/")
	})

	hooks.OnResponse(func(r *colly.Response) {
		rep.status = r.StatusCode
		rep.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			rep.status = r.StatusCode
		}
		rep.err = err
	})
}

// runCollector visits target and waits for completion or ctx cancellation.
// Visit errors that never reached OnError are recorded in rep.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, rep *reply) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && rep.err == nil {
			rep.err = err
		}
		return nil
	}
}

func (f *Fetcher) pickUserAgent() string {
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
