package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"NewsGrinder/internal/cooldown"
	"NewsGrinder/internal/metrics"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
)

const maxBodyBytes = 8 << 20

// Options tune the direct fetcher and its fallback transports.
type Options struct {
	Attempts             int
	Timeout              time.Duration
	UserAgent            string
	StatusCooldowns      map[int]time.Duration
	NetworkErrorCooldown time.Duration
	ProxyReaderURL       string
	ArchiveHosts         []string
	ArchiveDelay         time.Duration
	ArchiveCooldown      time.Duration
	WaybackURL           string
}

// Fetcher downloads pages with browser-like headers. Blocked responses put
// the host on cooldown and escalate to a readability proxy, archive mirrors
// and the wayback machine.
type Fetcher struct {
	client    *http.Client
	cooldowns *cooldown.Tracker
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics

	now   func() time.Time
	sleep ratelimit.Sleeper

	archiveMu    sync.Mutex
	archiveUntil time.Time
	lastArchive  time.Time
}

var _ ports.Fetcher = (*Fetcher)(nil)

// New wires an HTTP client; a nil client gets the configured timeout.
func New(client *http.Client, tracker *cooldown.Tracker, opts Options, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if tracker == nil {
		tracker = cooldown.NewTracker(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Fetcher{
		client:    client,
		cooldowns: tracker,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		sleep:     ratelimit.Sleep,
	}
}

// WithClock swaps the time source and sleeper.
func (f *Fetcher) WithClock(now func() time.Time, sleep ratelimit.Sleeper) *Fetcher {
	f.now = now
	f.sleep = sleep
	return f
}

type response struct {
	status     int
	body       string
	retryAfter string
}

// FetchDirect returns the page body, or "" when every transport failed.
func (f *Fetcher) FetchDirect(ctx context.Context, rawURL string) string {
	if status := f.cooldowns.Check(rawURL); status != nil {
		f.logger.Info("domain cooldown active", "host", status.Host, "seconds", int(status.Remaining.Seconds()+0.5))
		f.metrics.Fetch("direct", "cooldown")
		return ""
	}

	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if ctx.Err() != nil {
			return ""
		}
		resp, err := f.get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if err != nil {
			f.logger.Warn("article fetch failed", "url", rawURL, "attempt", attempt, "error", err)
			f.metrics.Fetch("direct", "error")
			f.cooldowns.Set(rawURL, f.opts.NetworkErrorCooldown, "error")
			continue
		}
		if ok(resp.status) {
			f.metrics.Fetch("direct", "ok")
			return resp.body
		}
		f.metrics.Fetch("direct", strconv.Itoa(resp.status))

		wait := retryAfter(resp.retryAfter, f.now())
		if wait == 0 {
			wait = f.opts.StatusCooldowns[resp.status]
		}
		if wait > 0 {
			f.cooldowns.Set(rawURL, wait, strconv.Itoa(resp.status))
		}

		if blocked(resp.status) {
			if body := f.fallbacks(ctx, rawURL); body != "" {
				return body
			}
		}
		f.logger.Warn("article fetch failed", "url", rawURL, "attempt", attempt, "status", resp.status)
	}
	return ""
}

func (f *Fetcher) fallbacks(ctx context.Context, rawURL string) string {
	if proxied := f.proxyURL(rawURL); proxied != "" {
		if body := f.tryFetch(ctx, proxied, "proxy"); body != "" {
			return body
		}
	}
	if body := f.tryArchives(ctx, rawURL); body != "" {
		return body
	}
	return f.tryWayback(ctx, rawURL)
}

func (f *Fetcher) tryFetch(ctx context.Context, target, label string) string {
	resp, err := f.get(ctx, target, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		f.logger.Warn("article alt fetch failed", "transport", label, "error", err)
		f.metrics.Fetch(label, "error")
		return ""
	}
	if !ok(resp.status) {
		f.logger.Warn("article alt fetch failed", "transport", label, "status", resp.status)
		f.metrics.Fetch(label, strconv.Itoa(resp.status))
		return ""
	}
	f.logger.Debug("article alt fetch ok", "transport", label, "length", len(resp.body))
	f.metrics.Fetch(label, "ok")
	return resp.body
}

// tryArchives probes mirror hosts in order, spaced by ArchiveDelay. A 429
// from any mirror suspends all of them for ArchiveCooldown.
func (f *Fetcher) tryArchives(ctx context.Context, rawURL string) string {
	f.archiveMu.Lock()
	defer f.archiveMu.Unlock()

	if now := f.now(); now.Before(f.archiveUntil) {
		f.logger.Info("archive cooldown active", "seconds", int(f.archiveUntil.Sub(now).Seconds()+0.5))
		return ""
	}

	stripped := strings.SplitN(rawURL, "?", 2)[0]
	for _, host := range f.opts.ArchiveHosts {
		if wait := f.opts.ArchiveDelay - f.now().Sub(f.lastArchive); wait > 0 {
			if err := f.sleep(ctx, wait); err != nil {
				return ""
			}
		}
		f.lastArchive = f.now()

		target := mirrorBase(host) + stripped
		label := "archive"
		resp, err := f.get(ctx, target, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if err != nil {
			f.logger.Warn("article alt fetch failed", "transport", label, "host", host, "error", err)
			f.metrics.Fetch(label, "error")
			continue
		}
		if ok(resp.status) && resp.body != "" {
			f.metrics.Fetch(label, "ok")
			return resp.body
		}
		f.metrics.Fetch(label, strconv.Itoa(resp.status))
		f.logger.Warn("article alt fetch failed", "transport", label, "host", host, "status", resp.status)
		if resp.status == http.StatusTooManyRequests {
			f.archiveUntil = f.now().Add(f.opts.ArchiveCooldown)
			f.logger.Info("archive cooldown set", "seconds", int(f.opts.ArchiveCooldown.Seconds()))
			break
		}
	}
	return ""
}

type waybackMeta struct {
	ArchivedSnapshots struct {
		Closest struct {
			URL string `json:"url"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

func (f *Fetcher) tryWayback(ctx context.Context, rawURL string) string {
	if f.opts.WaybackURL == "" {
		return ""
	}
	metaURL := f.opts.WaybackURL + "?url=" + url.QueryEscape(rawURL)
	resp, err := f.get(ctx, metaURL, "application/json,text/plain;q=0.9,*/*;q=0.8")
	if err != nil || !ok(resp.status) {
		f.logger.Warn("article alt fetch failed", "transport", "wayback-meta", "error", err)
		f.metrics.Fetch("wayback", "error")
		return ""
	}
	var meta waybackMeta
	if err := json.Unmarshal([]byte(resp.body), &meta); err != nil {
		f.logger.Warn("article alt fetch failed", "transport", "wayback-meta", "error", err)
		f.metrics.Fetch("wayback", "error")
		return ""
	}
	snapshot := meta.ArchivedSnapshots.Closest.URL
	if snapshot == "" {
		f.logger.Info("wayback no snapshot", "url", rawURL)
		f.metrics.Fetch("wayback", "empty")
		return ""
	}
	if body := f.tryFetch(ctx, snapshot, "wayback"); body != "" {
		return body
	}
	if proxied := f.proxyURL(snapshot); proxied != "" {
		return f.tryFetch(ctx, proxied, "wayback-proxy")
	}
	return ""
}

func (f *Fetcher) get(ctx context.Context, target, accept string) (response, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	if !ok(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return out, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	out.body = string(body)
	return out, nil
}

// proxyURL rewrites rawURL for the readability proxy as
// <proxy>/<scheme>://<host><path><query>.
func (f *Fetcher) proxyURL(rawURL string) string {
	if f.opts.ProxyReaderURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	target := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return strings.TrimRight(f.opts.ProxyReaderURL, "/") + "/" + target
}

func mirrorBase(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/") + "/"
	}
	return "https://" + host + "/"
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
		return 0
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

func blocked(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests
}
