package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with domsettle-specific setup. Unlike a crawler tab
// it does not wait for load completion on open: deciding when the page is
// ready is exactly the job of the settle machinery, so OpenTab returns as
// soon as navigation has been issued.
type Tab struct {
	Page      *rod.Page
	PageURL   string
	SessionID string
}

// OpenTab creates a stealth tab on the manager's current browser and issues
// navigation to the URL without waiting for it to finish.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, sessionID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	return &Tab{
		Page:      page,
		PageURL:   pageURL,
		SessionID: sessionID,
	}, nil
}

// GetFullDOM serialises the complete document as outer HTML.
func (t *Tab) GetFullDOM(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Screenshot captures the current viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	format := proto.PageCaptureScreenshotFormatPng
	data, err := t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: format,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// PrintToPDF renders the page as a PDF document.
func (t *Tab) PrintToPDF(ctx context.Context) ([]byte, error) {
	stream, err := t.Page.Context(ctx).PDF(&proto.PagePrintToPDF{})
	if err != nil {
		return nil, fmt.Errorf("browser: print to pdf: %w", err)
	}

	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("browser: read pdf stream: %w", err)
	}
	return out, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
