// Package collyfetcher implements grant.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements grant.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// visit collects what the collector callbacks observed. It is owned by the
// goroutine running Visit until it is handed over as an outcome.
type visit struct {
	resp grant.FetchResponse
	err  error
}

type outcome struct {
	visit
	visitErr error
}

// Fetch executes a single HTTP GET. Transport failures and HTTP error
// statuses are returned as *grant.FetchError; for the latter the response
// is returned too.
func (f *Fetcher) Fetch(ctx context.Context, request grant.FetchRequest) (grant.FetchResponse, error) {
	v := &visit{}
	start := time.Now()
	collector, robotsState := f.buildCollector(request, start, v)

	out, err := f.runCollector(ctx, collector, request.URL, v)
	if err != nil {
		return out.resp, &grant.FetchError{URL: request.URL, StatusCode: out.resp.StatusCode, Err: err}
	}
	if robotsState != nil && robotsState.fallback {
		f.logger.Warn("robots.txt unreachable, assuming allow-all",
			zap.String("url", request.URL),
			zap.String("reason", robotsState.reason),
		)
	}
	return out.resp, nil
}

func (f *Fetcher) buildCollector(
	request grant.FetchRequest,
	start time.Time,
	v *visit,
) (*colly.Collector, *robotsProbeState) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	var robotsState *robotsProbeState
	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	if f.cfg.RespectRobots {
		robotsState = newRobotsProbeState()
		collector.WithTransport(&robotsAwareTransport{
			base:  baseTransport,
			state: robotsState,
		})
	} else {
		collector.WithTransport(baseTransport)
	}

	f.configureCollectorHooks(collector, request, start, v)
	return collector, robotsState
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request grant.FetchRequest,
	start time.Time,
	v *visit,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		v.resp = toFetchResponse(r, start)
	})

	// Colly reports statuses >= 400 through OnError with the response attached.
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			v.resp = toFetchResponse(r, start)
		}
		v.err = err
	})
}

func toFetchResponse(r *colly.Response, start time.Time) grant.FetchResponse {
	resp := grant.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

// runCollector visits url on its own goroutine. v is only touched by that
// goroutine; the caller sees a copy through the channel, so a visit that
// outlives a canceled ctx writes nothing the caller can observe.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, v *visit) (outcome, error) {
	done := make(chan outcome, 1)
	go func() {
		err := collector.Visit(url)
		done <- outcome{visit: *v, visitErr: err}
	}()

	select {
	case <-ctx.Done():
		return outcome{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case out := <-done:
		if out.err != nil {
			return out, fmt.Errorf("colly response failed: %w", out.err)
		}
		if out.visitErr != nil {
			return out, fmt.Errorf("colly visit failed: %w", out.visitErr)
		}
		return out, nil
	}
}

func (f *Fetcher) copyHeaders(request grant.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
