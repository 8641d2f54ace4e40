// Package browser is a small go-rod toolkit for page capture: navigate,
// screenshot, text extraction and PDF rendering. It carries no
// orchestration logic; cmd/browse is its only consumer.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
)

// DefaultTimeout bounds one navigation when none is configured.
const DefaultTimeout = 30 * time.Second

// PageInfo describes a loaded page.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Toolkit owns one launched Chrome instance. Pages are opened per call
// and closed before the call returns.
type Toolkit struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// New returns an unstarted toolkit.
func New(cfg config.BrowserConfig) *Toolkit {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Toolkit{cfg: cfg}
}

// Start launches Chrome and connects. Calling Start on a live toolkit
// is a no-op.
func (t *Toolkit) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		return nil
	}

	launch := launcher.New().Headless(t.cfg.Headless)
	if t.cfg.ChromePath != "" {
		launch = launch.Bin(t.cfg.ChromePath)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	t.browser = browser
	logging.Browser("chrome started (headless=%v)", t.cfg.Headless)
	return nil
}

// Shutdown closes the browser.
func (t *Toolkit) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser == nil {
		return nil
	}
	err := t.browser.Close()
	t.browser = nil
	logging.Browser("chrome stopped")
	return err
}

// Navigate loads a URL and reports the resolved URL and title.
func (t *Toolkit) Navigate(ctx context.Context, url string) (*PageInfo, error) {
	var info *PageInfo
	err := t.withPage(ctx, url, func(page *rod.Page) error {
		pageInfo, err := page.Info()
		if err != nil {
			return fmt.Errorf("page info: %w", err)
		}
		info = &PageInfo{URL: pageInfo.URL, Title: pageInfo.Title}
		return nil
	})
	return info, err
}

// Screenshot loads a URL and captures it as PNG. fullPage captures the
// whole scroll height rather than the viewport.
func (t *Toolkit) Screenshot(ctx context.Context, url string, fullPage bool) ([]byte, error) {
	var data []byte
	err := t.withPage(ctx, url, func(page *rod.Page) error {
		var shotErr error
		data, shotErr = page.Screenshot(fullPage, nil)
		return shotErr
	})
	return data, err
}

// HTML loads a URL and returns its rendered markup.
func (t *Toolkit) HTML(ctx context.Context, url string) (string, error) {
	var markup string
	err := t.withPage(ctx, url, func(page *rod.Page) error {
		var htmlErr error
		markup, htmlErr = page.HTML()
		return htmlErr
	})
	return markup, err
}

// Text loads a URL and returns its visible text content.
func (t *Toolkit) Text(ctx context.Context, url string) (string, error) {
	markup, err := t.HTML(ctx, url)
	if err != nil {
		return "", err
	}
	return ExtractText(markup)
}

// PDF loads a URL and renders it to PDF.
func (t *Toolkit) PDF(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := t.withPage(ctx, url, func(page *rod.Page) error {
		stream, pdfErr := page.PDF(&proto.PagePrintToPDF{})
		if pdfErr != nil {
			return fmt.Errorf("print to pdf: %w", pdfErr)
		}
		defer stream.Close()
		data, pdfErr = io.ReadAll(stream)
		return pdfErr
	})
	return data, err
}

// withPage opens a page for one call, waits for load, runs fn, closes.
func (t *Toolkit) withPage(ctx context.Context, url string, fn func(page *rod.Page) error) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	browser := t.browser
	t.mu.Unlock()
	if browser == nil {
		return errors.New("browser not connected")
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(t.cfg.Timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return fn(page)
}
