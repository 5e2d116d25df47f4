package extract

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

func TestExtractFullDocument(t *testing.T) {
	raw := `<!-- URL: https://en.wikipedia.org/wiki/Cat -->
<html>
<head>
  <title>  Cat - Wikipedia  </title>
  <style>body { color: red; }</style>
  <script>var hidden = "do not index";</script>
</head>
<body>
  <h1>Cat</h1>
  <p>The cat is a   small
     domesticated carnivorous mammal.</p>
  <script type="text/javascript">alert("nope")</script>
</body>
</html>`

	page := Extract(raw)
	if page.URL != "https://en.wikipedia.org/wiki/Cat" {
		t.Errorf("URL = %q", page.URL)
	}
	if page.Title != "Cat - Wikipedia" {
		t.Errorf("Title = %q", page.Title)
	}
	want := "Cat - Wikipedia Cat The cat is a small domesticated carnivorous mammal."
	if page.Text != want {
		t.Errorf("Text = %q, want %q", page.Text, want)
	}
	if len(page.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", page.Warnings)
	}
}

func TestExtractSentinels(t *testing.T) {
	page := Extract("<p>just a fragment</p>")
	if page.URL != UnknownURL {
		t.Errorf("URL = %q, want %q", page.URL, UnknownURL)
	}
	if page.Title != UntitledPage {
		t.Errorf("Title = %q, want %q", page.Title, UntitledPage)
	}
	if page.Text != "just a fragment" {
		t.Errorf("Text = %q", page.Text)
	}
	if len(page.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", page.Warnings)
	}
	for _, w := range page.Warnings {
		if !errors.Is(w, apperrors.ErrExtraction) {
			t.Errorf("warning %v does not wrap ErrExtraction", w)
		}
	}
	if WarningKind(page.Warnings[0]) != KindURL || WarningKind(page.Warnings[1]) != KindTitle {
		t.Errorf("warning kinds = %q, %q", WarningKind(page.Warnings[0]), WarningKind(page.Warnings[1]))
	}
}

func TestExtractMalformedHTML(t *testing.T) {
	raw := `<!-- URL: http://example.com/x --><html><head><title>Broken</title><body><div><p>unclosed <b>bold <i>text</div></span>`
	page := Extract(raw)
	if page.URL != "http://example.com/x" {
		t.Errorf("URL = %q", page.URL)
	}
	if page.Title != "Broken" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.Text != "Broken unclosed bold text" {
		t.Errorf("Text = %q", page.Text)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	page := Extract("")
	if page.Text != "" {
		t.Errorf("Text = %q, want empty", page.Text)
	}
	if page.Title != UntitledPage || page.URL != UnknownURL {
		t.Errorf("unexpected sentinels: %+v", page)
	}
}

func TestMarkerURLFirstMatch(t *testing.T) {
	raw := "<!-- URL: a -->\n<!-- URL: b -->"
	if got := MarkerURL(raw); got != "a" {
		t.Errorf("MarkerURL = %q, want a", got)
	}
}

func TestExtractNoscriptKeepsOnlyText(t *testing.T) {
	raw := `<html><head><title>T</title></head><body>` +
		`<noscript><iframe src="https://www.googletagmanager.com/ns.html?id=GTM-X" height="0"></iframe></noscript>` +
		`<noscript><p class="x">Enable JS</p></noscript>hello</body></html>`
	page := Extract(raw)
	if page.Text != "T Enable JS hello" {
		t.Errorf("Text = %q, want %q", page.Text, "T Enable JS hello")
	}
}
