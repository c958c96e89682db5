// Package browser fetches pages through a headless Chromium, first from the
// archive mirror and then from the publisher.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"NewsGrinder/internal/ports"
)

const (
	captchaSelector  = `iframe[src*="recaptcha"]`
	contentSelector  = "#CONTENT"
	versionsSelector = ".TEXT-BLOCK > a"
	archiveBodyJS    = `() => [...document.querySelectorAll('.body')].map(x => x.innerHTML).join('')`
	pageBodyJS       = `() => document.body ? document.body.innerHTML : ''`
)

// Options tunes the browser.
type Options struct {
	Headless          bool
	ArchiveHost       string
	CaptchaTimeout    time.Duration
	NavigationTimeout time.Duration
}

// Browser starts playwright lazily and reuses one page for every call.
type Browser struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

var _ ports.Browser = (*Browser)(nil)

// New builds a browser; nothing starts until the first Browse.
func New(opts Options, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ArchiveHost == "" {
		opts.ArchiveHost = "archive.ph"
	}
	if opts.CaptchaTimeout <= 0 {
		opts.CaptchaTimeout = 3 * time.Minute
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	return &Browser{opts: opts, logger: logger}
}

// Browse returns the article markup of the newest archived copy, or the
// publisher page body when the archive has none.
func (b *Browser) Browse(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.ensurePage()
	if err != nil {
		return "", err
	}

	b.logger.Info("browsing archive", "url", url)
	if _, err := page.Goto(ArchiveURL(b.opts.ArchiveHost, url), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   millis(b.opts.NavigationTimeout),
	}); err != nil {
		b.logger.Warn("archive navigation failed", "url", url, "error", err)
	} else {
		if html := b.archived(page); html != "" {
			return html, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.logger.Info("browsing source", "url", url)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(10000),
	}); err != nil {
		b.logger.Warn("source navigation failed", "url", url, "error", err)
	}
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10000),
	})
	return evaluateString(page, pageBodyJS)
}

// archived waits out a captcha, opens the newest snapshot and returns its body.
func (b *Browser) archived(page playwright.Page) string {
	if n, _ := page.Locator(captchaSelector).Count(); n > 0 {
		b.logger.Info("waiting for captcha to be solved")
		if err := page.Locator(contentSelector).WaitFor(playwright.LocatorWaitForOptions{
			Timeout: millis(b.opts.CaptchaTimeout),
		}); err != nil {
			b.logger.Warn("captcha not solved", "error", err)
			return ""
		}
	}

	versions := page.Locator(versionsSelector)
	if n, _ := versions.Count(); n > 0 {
		if err := versions.First().Click(); err != nil {
			b.logger.Warn("open newest snapshot failed", "error", err)
			return ""
		}
		page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateLoad})
	}

	html, err := evaluateString(page, archiveBodyJS)
	if err != nil {
		b.logger.Warn("read archived body failed", "error", err)
		return ""
	}
	return html
}

func (b *Browser) ensurePage() (playwright.Page, error) {
	if b.page != nil {
		return b.page, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: 1024, Height: 600},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}
	b.pw, b.browser, b.page = pw, browser, page
	return page, nil
}

// Close shuts the browser down if it was started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw == nil {
		return nil
	}
	var firstErr error
	if err := b.browser.Close(); err != nil {
		firstErr = err
	}
	if err := b.pw.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.pw, b.browser, b.page = nil, nil, nil
	return firstErr
}

// ArchiveURL is the archive mirror address of target without its query.
func ArchiveURL(host, target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return "https://" + strings.TrimSuffix(host, "/") + "/" + target
}

func evaluateString(page playwright.Page, js string) (string, error) {
	out, err := page.Evaluate(js)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	s, _ := out.(string)
	return s, nil
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
