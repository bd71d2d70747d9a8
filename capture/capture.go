// Package capture snapshots a settled document: the serialized DOM, a
// sanitized markdown rendering, and optionally the printed PDF. It runs
// after stability has been reached, so every artifact describes the same
// document generation.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/domsettle/browser"
)

// Options selects which artifacts Observe produces.
type Options struct {
	// Markdown enables the markdown rendering of the visible DOM.
	Markdown bool

	// PDF enables printing the page to PDF. The output is validated before
	// being returned.
	PDF bool

	// Screenshot enables a full-page PNG capture.
	Screenshot bool
}

// Artifact is one captured snapshot.
type Artifact struct {
	URL        string `json:"url"`
	HTML       string `json:"html"`
	HTMLHash   string `json:"html_hash"`
	Markdown   string `json:"markdown,omitempty"`
	PDF        []byte `json:"pdf,omitempty"`
	Screenshot []byte `json:"screenshot,omitempty"`
}

// Observer converts settled tabs into artifacts.
type Observer struct {
	md       *converter.Converter
	sanitize *bluemonday.Policy
}

// NewObserver creates an Observer. It is safe for reuse across sessions.
func NewObserver() *Observer {
	return &Observer{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitize: bluemonday.UGCPolicy(),
	}
}

// Observe captures the requested artifacts from the tab.
func (o *Observer) Observe(ctx context.Context, tab *browser.Tab, opts Options) (*Artifact, error) {
	raw, err := tab.GetFullDOM(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: dom: %w", err)
	}

	sum := sha256.Sum256(raw)
	art := &Artifact{
		URL:      tab.PageURL,
		HTML:     string(raw),
		HTMLHash: hex.EncodeToString(sum[:]),
	}

	if opts.Markdown {
		visible, err := StripHidden(art.HTML)
		if err != nil {
			// DOM-serialized HTML should always reparse; fall back to raw.
			visible = art.HTML
		}
		art.Markdown = o.ToMarkdown(visible, tab.PageURL)
	}

	if opts.PDF {
		pdf, err := tab.PrintToPDF(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture: pdf: %w", err)
		}
		if err := ValidatePDF(pdf); err != nil {
			return nil, fmt.Errorf("capture: pdf: %w", err)
		}
		art.PDF = pdf
	}

	if opts.Screenshot {
		shot, err := tab.Screenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture: screenshot: %w", err)
		}
		art.Screenshot = shot
	}

	return art, nil
}

// ToMarkdown renders HTML as markdown after sanitizing it. Returns the
// empty string when nothing convertible remains.
func (o *Observer) ToMarkdown(html, sourceURL string) string {
	clean := o.sanitize.Sanitize(html)
	result, err := o.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(result)
}
