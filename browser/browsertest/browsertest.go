// Package browsertest provides an in-memory browser.Browser for tests. Pages
// are static HTML documents parsed with goquery; clicks toggle Bootstrap
// collapse panels and select changes can swap in per-value markup, which is
// enough to drive the scrapers without Chrome.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"metal-price-scraper/browser"
)

// ErrXPathUnsupported is returned for XPath selectors; use CSS in fixtures.
var ErrXPathUnsupported = errors.New("browsertest: xpath selectors are not supported")

// Page is one URL's content.
type Page struct {
	HTML string
	// ReloadHTML replaces HTML when the page is reloaded.
	ReloadHTML string
	// Variants maps a select option value to the markup rendered once that
	// option is chosen.
	Variants map[string]string
	// NavigateErr makes every navigation to the page fail.
	NavigateErr error
}

// Browser is a fake browser.Browser. The zero value has no pages.
type Browser struct {
	Pages map[string]*Page
	// StuckSelect records SetSelectValue calls without applying them.
	StuckSelect bool

	Navigations []string
	Reloads     int
	Clicks      []string
	SelectCalls []string

	url  string
	page *Page
	doc  *goquery.Document
}

var _ browser.Browser = (*Browser)(nil)

// New returns an empty fake browser.
func New() *Browser {
	return &Browser{Pages: make(map[string]*Page)}
}

// AddPage registers html at rawURL and returns the page for further setup.
func (b *Browser) AddPage(rawURL, html string) *Page {
	if b.Pages == nil {
		b.Pages = make(map[string]*Page)
	}
	p := &Page{HTML: html}
	b.Pages[rawURL] = p
	return p
}

// URL returns the currently loaded URL.
func (b *Browser) URL() string { return b.url }

func (b *Browser) Navigate(ctx context.Context, rawURL string) error {
	b.Navigations = append(b.Navigations, rawURL)
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := b.Pages[rawURL]
	if !ok {
		return fmt.Errorf("browsertest: no page at %s", rawURL)
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if err := b.render(p.HTML); err != nil {
		return err
	}
	b.url = rawURL
	b.page = p
	return nil
}

func (b *Browser) Reload(ctx context.Context) error {
	b.Reloads++
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.page == nil {
		return errors.New("browsertest: reload without a loaded page")
	}
	html := b.page.HTML
	if b.page.ReloadHTML != "" {
		html = b.page.ReloadHTML
	}
	return b.render(html)
}

func (b *Browser) PageSource(ctx context.Context) (string, error) {
	if b.doc == nil {
		return "", errors.New("browsertest: no page loaded")
	}
	return b.doc.Html()
}

func (b *Browser) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	_, err := b.find(sel)
	if errors.Is(err, browser.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *Browser) Visible(ctx context.Context, sel browser.Selector) (bool, error) {
	s, err := b.find(sel)
	if err != nil {
		return false, err
	}
	return displayed(s), nil
}

func (b *Browser) ScrollIntoView(ctx context.Context, sel browser.Selector) error {
	_, err := b.find(sel)
	return err
}

// Click toggles the collapse panel referenced by the element's href or
// data-target, the way Bootstrap's accordion does.
func (b *Browser) Click(ctx context.Context, sel browser.Selector) error {
	s, err := b.find(sel)
	if err != nil {
		return err
	}
	b.Clicks = append(b.Clicks, sel.Query)

	target, ok := s.Attr("data-target")
	if !ok {
		target, ok = s.Attr("href")
	}
	if !ok || !strings.HasPrefix(target, "#") || len(target) < 2 {
		return nil
	}
	panel := b.doc.Find(target).First()
	if panel.HasClass("collapse") {
		if panel.HasClass("in") {
			panel.RemoveClass("in")
		} else {
			panel.AddClass("in")
		}
	}
	return nil
}

func (b *Browser) SelectedValue(ctx context.Context, sel browser.Selector) (string, error) {
	s, err := b.find(sel)
	if err != nil {
		return "", err
	}
	opt := s.Find("option[selected]").First()
	if opt.Length() == 0 {
		opt = s.Find("option").First()
	}
	return optionValue(opt), nil
}

func (b *Browser) SetSelectValue(ctx context.Context, sel browser.Selector, value string) error {
	s, err := b.find(sel)
	if err != nil {
		return err
	}
	b.SelectCalls = append(b.SelectCalls, value)

	opt := s.Find("option").FilterFunction(func(_ int, o *goquery.Selection) bool {
		return optionValue(o) == value
	})
	if opt.Length() == 0 {
		return fmt.Errorf("option %q in %s: %w", value, sel, browser.ErrNotFound)
	}
	if b.StuckSelect {
		return nil
	}

	if html, ok := b.page.Variants[value]; ok {
		if err := b.render(html); err != nil {
			return err
		}
		if s, err = b.find(sel); err != nil {
			// the new markup has no dropdown; nothing left to mark
			return nil
		}
		opt = s.Find("option").FilterFunction(func(_ int, o *goquery.Selection) bool {
			return optionValue(o) == value
		})
	}
	s.Find("option").RemoveAttr("selected")
	opt.First().SetAttr("selected", "selected")
	return nil
}

func (b *Browser) Links(ctx context.Context, sel browser.Selector) ([]string, error) {
	s, err := b.find(sel)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(b.url)

	var hrefs []string
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			hrefs = append(hrefs, "")
			return
		}
		ref, err := url.Parse(href)
		if err != nil || base == nil {
			hrefs = append(hrefs, href)
			return
		}
		hrefs = append(hrefs, base.ResolveReference(ref).String())
	})
	return hrefs, nil
}

func (b *Browser) OuterHTML(ctx context.Context, sel browser.Selector) (string, error) {
	s, err := b.find(sel)
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(s)
}

func (b *Browser) render(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("browsertest: parse page: %w", err)
	}
	b.doc = doc
	return nil
}

func (b *Browser) find(sel browser.Selector) (*goquery.Selection, error) {
	if sel.XPath {
		return nil, ErrXPathUnsupported
	}
	if b.doc == nil {
		return nil, errors.New("browsertest: no page loaded")
	}
	s := b.doc.Find(sel.Query).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", sel, browser.ErrNotFound)
	}
	return s, nil
}

// displayed reports whether neither s nor any ancestor is hidden by an inline
// style, the hidden attribute or a closed collapse panel.
func displayed(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style, _ := n.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
		if n.HasClass("collapse") && !n.HasClass("in") && !n.HasClass("show") {
			return false
		}
	}
	return true
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}
