// Package capture turns browser-side material (a selection, a whole page or
// an assistant reply on a chat site) into staged clips.
package capture

import (
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor converts HTML into the Markdown stored as clip content.
type Extractor struct {
	conv   *converter.Converter
	policy *bluemonday.Policy
}

// NewExtractor returns an extractor with CommonMark and table support.
func NewExtractor() *Extractor {
	return &Extractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Markdown converts an HTML fragment. Relative links are resolved against
// sourceURL when it is set.
func (e *Extractor) Markdown(rawHTML, sourceURL string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", nil
	}
	var (
		out string
		err error
	)
	if domain := domainOf(sourceURL); domain != "" {
		out, err = e.conv.ConvertString(rawHTML, converter.WithDomain(domain))
	} else {
		out, err = e.conv.ConvertString(rawHTML)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Sanitize strips scripts, handlers and other active markup so raw HTML can
// be kept alongside the clip.
func (e *Extractor) Sanitize(rawHTML string) string {
	return e.policy.Sanitize(rawHTML)
}

// Page is the readable part of a full document.
type Page struct {
	Title   string
	Content string
	Favicon string
}

// Page extracts the main content of a whole document: the first article,
// main or role=main element, or the body with page chrome removed.
func (e *Extractor) Page(rawHTML, sourceURL string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Title:   findTitle(doc),
		Favicon: findFavicon(doc, sourceURL),
	}

	root := mainNode(doc)
	if root == nil {
		return page, nil
	}
	removeAll(root, isChrome)

	body, err := innerHTML(root)
	if err != nil {
		return Page{}, err
	}
	page.Content, err = e.Markdown(body, sourceURL)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// findTitle extracts the <title> text.
func findTitle(n *html.Node) string {
	if t := first(n, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		return strings.TrimSpace(textOf(t))
	}
	return ""
}

// findFavicon returns the href of the first <link rel~=icon>, resolved
// against sourceURL.
func findFavicon(doc *html.Node, sourceURL string) string {
	link := first(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Link {
			return false
		}
		for _, tok := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
			if tok == "icon" {
				return true
			}
		}
		return false
	})
	if link == nil {
		return ""
	}
	href := attr(link, "href")
	base, err := url.Parse(sourceURL)
	if err != nil || sourceURL == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func mainNode(doc *html.Node) *html.Node {
	candidates := []func(*html.Node) bool{
		func(n *html.Node) bool { return n.DataAtom == atom.Article },
		func(n *html.Node) bool { return n.DataAtom == atom.Main },
		func(n *html.Node) bool { return attr(n, "role") == "main" },
		func(n *html.Node) bool { return n.DataAtom == atom.Body },
	}
	for _, match := range candidates {
		if n := first(doc, match); n != nil {
			return n
		}
	}
	return nil
}

func isChrome(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Header, atom.Footer, atom.Aside, atom.Form, atom.Iframe:
		return true
	}
	return false
}
