// Package extract recovers the source URL, title and visible text from a
// crawled HTML document. Extraction never fails: anything that cannot be
// recovered falls back to a sentinel value and is reported as a warning.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

const (
	UnknownURL   = "unknown"
	UntitledPage = "Untitled"
)

// Warning kinds.
const (
	KindURL     = "url"
	KindTitle   = "title"
	KindParse   = "parse"
	KindTimeout = "timeout"
)

var urlMarker = regexp.MustCompile(`<!-- URL: (.*?) -->`)

// Warning is a recoverable extraction problem. It matches
// apperrors.ErrExtraction under errors.Is.
type Warning struct {
	Kind   string
	Detail string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s: %s", apperrors.ErrExtraction, w.Detail)
}

func (w *Warning) Unwrap() error {
	return apperrors.ErrExtraction
}

// NewWarning returns a Warning of the given kind.
func NewWarning(kind, format string, args ...any) *Warning {
	return &Warning{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WarningKind returns the kind of an extraction warning, or "" for other
// errors.
func WarningKind(err error) string {
	var w *Warning
	if errors.As(err, &w) {
		return w.Kind
	}
	return ""
}

// Page is the best-effort extraction result for one document.
type Page struct {
	URL      string
	Title    string
	Text     string
	Warnings []error
}

// Extract parses raw HTML and returns its URL, title and text.
func Extract(raw string) Page {
	page := Page{
		URL:   MarkerURL(raw),
		Title: UntitledPage,
	}
	if page.URL == UnknownURL {
		page.Warnings = append(page.Warnings, NewWarning(KindURL, "no URL marker"))
	}

	// With scripting off, noscript children parse as elements and only
	// their text survives.
	root, err := html.ParseWithOptions(strings.NewReader(raw), html.ParseOptionEnableScripting(false))
	if err != nil {
		page.Warnings = append(page.Warnings, NewWarning(KindParse, "parsing html: %v", err))
		return page
	}

	var words []string
	titleFound := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Title:
				if !titleFound {
					titleFound = true
					page.Title = strings.TrimSpace(textOf(n))
				}
			}
		case html.TextNode:
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if !titleFound {
		page.Warnings = append(page.Warnings, NewWarning(KindTitle, "no title element"))
	}
	page.Text = strings.Join(words, " ")
	return page
}

// MarkerURL returns the URL embedded in the crawler's marker comment, or
// UnknownURL.
func MarkerURL(raw string) string {
	m := urlMarker.FindStringSubmatch(raw)
	if m == nil {
		return UnknownURL
	}
	return m[1]
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
