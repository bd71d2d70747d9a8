package capture

import (
	"strings"
	"testing"
)

func TestStripHidden_DisplayNone(t *testing.T) {
	in := `<html><body>
<p>visible paragraph</p>
<div style="display:none">secret hidden text</div>
</body></html>`

	out, err := StripHidden(in)
	if err != nil {
		t.Fatalf("StripHidden: %v", err)
	}
	if strings.Contains(out, "secret hidden text") {
		t.Error("display:none content should be removed")
	}
	if !strings.Contains(out, "visible paragraph") {
		t.Error("visible content should be preserved")
	}
}

func TestStripHidden_VisibilityHidden(t *testing.T) {
	in := `<p>ok</p><span style="visibility: hidden">hidden payload</span>`

	out, err := StripHidden(in)
	if err != nil {
		t.Fatalf("StripHidden: %v", err)
	}
	if strings.Contains(out, "hidden payload") {
		t.Error("visibility:hidden content should be removed")
	}
}

func TestStripHidden_HiddenAttribute(t *testing.T) {
	in := `<div hidden>tucked away</div><div>shown</div>`

	out, err := StripHidden(in)
	if err != nil {
		t.Fatalf("StripHidden: %v", err)
	}
	if strings.Contains(out, "tucked away") {
		t.Error("hidden attribute content should be removed")
	}
	if !strings.Contains(out, "shown") {
		t.Error("visible content should be preserved")
	}
}

func TestStripHidden_ScriptAndStyle(t *testing.T) {
	in := `<html><head><style>body{color:red}</style></head>
<body><script>var x = "code";</script><p>text</p></body></html>`

	out, err := StripHidden(in)
	if err != nil {
		t.Fatalf("StripHidden: %v", err)
	}
	if strings.Contains(out, "color:red") || strings.Contains(out, "var x") {
		t.Error("script/style content should be removed")
	}
	if !strings.Contains(out, "text") {
		t.Error("body text should be preserved")
	}
}

func TestVisibleText(t *testing.T) {
	in := `<h1>Title</h1><p>First <b>bold</b> words.</p><div style="display:none">nope</div>`

	text, err := VisibleText(in)
	if err != nil {
		t.Fatalf("VisibleText: %v", err)
	}
	for _, want := range []string{"Title", "First", "bold", "words."} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	if strings.Contains(text, "nope") {
		t.Errorf("hidden text leaked into %q", text)
	}
}

func TestToMarkdown(t *testing.T) {
	o := NewObserver()

	md := o.ToMarkdown(`<h1>Heading</h1><p>Some <strong>bold</strong> text and a <a href="/rel">link</a>.</p>`,
		"https://example.com/page")
	if !strings.Contains(md, "# Heading") {
		t.Errorf("expected heading in markdown, got %q", md)
	}
	if !strings.Contains(md, "**bold**") {
		t.Errorf("expected bold in markdown, got %q", md)
	}
	// Relative links resolve against the source URL.
	if !strings.Contains(md, "example.com/rel") {
		t.Errorf("expected absolute link in markdown, got %q", md)
	}
}

func TestToMarkdown_Table(t *testing.T) {
	o := NewObserver()

	md := o.ToMarkdown(`<table><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr></table>`, "")
	if !strings.Contains(md, "|") {
		t.Errorf("expected markdown table, got %q", md)
	}
}

func TestToMarkdown_SanitizesScripts(t *testing.T) {
	o := NewObserver()

	md := o.ToMarkdown(`<p>fine</p><script>alert(1)</script>`, "")
	if strings.Contains(md, "alert") {
		t.Errorf("script content leaked into %q", md)
	}
}

func TestValidatePDF_Empty(t *testing.T) {
	if err := ValidatePDF(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestValidatePDF_Garbage(t *testing.T) {
	if err := ValidatePDF([]byte("not a pdf at all")); err == nil {
		t.Error("expected error for non-PDF input")
	}
}
