package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/utils"
)

// SessionConfig configures the Chrome instance behind a Session.
type SessionConfig struct {
	Headless        bool
	ChromeBin       string
	UserAgent       string
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
}

// Session is a Browser backed by a single Chrome tab driven over the DevTools
// protocol. It is not safe for concurrent use.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    SessionConfig
}

var _ Browser = (*Session)(nil)

// NewSession starts Chrome and opens a tab. A failure here is a session error:
// the job cannot continue without a browser.
func NewSession(parent context.Context, cfg SessionConfig, logger *utils.Logger) (*Session, error) {
	chromeBin := cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = FindChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// The first Run allocates the browser and binds it to tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, scrapeerrors.NewSession("start browser", err)
	}

	return &Session{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		cfg: cfg,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// runContext derives a context that carries the tab, expires after timeout
// and is cancelled together with ctx.
func (s *Session) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.runContext(ctx, s.cfg.PageLoadTimeout)
	defer cancel()
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return checkResponse(url, resp)
}

// checkResponse turns server errors into load failures so they are retried.
func checkResponse(url string, resp *network.Response) error {
	if resp != nil && resp.Status >= 500 {
		return fmt.Errorf("navigate %s: server returned %d %s", url, resp.Status, resp.StatusText)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	runCtx, cancel := s.runContext(ctx, s.cfg.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	var src string
	if err := s.eval(ctx, `document.documentElement.outerHTML`, &src); err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return src, nil
}

func (s *Session) Exists(ctx context.Context, sel Selector) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`(function(){ return !!(%s); })()`, lookupJS(sel))
	if err := s.eval(ctx, expr, &found); err != nil {
		return false, fmt.Errorf("exists %s: %w", sel, err)
	}
	return found, nil
}

func (s *Session) Visible(ctx context.Context, sel Selector) (bool, error) {
	return evalElement[bool](ctx, s, sel, `
		var st = window.getComputedStyle(el);
		return {found: true, value: st.display !== 'none' && st.visibility !== 'hidden' && el.getClientRects().length > 0};`)
}

func (s *Session) ScrollIntoView(ctx context.Context, sel Selector) error {
	_, err := evalElement[bool](ctx, s, sel, `el.scrollIntoView(true); return {found: true, value: true};`)
	return err
}

// Click dispatches a script click, which is not intercepted by overlays the
// way a synthetic mouse event can be.
func (s *Session) Click(ctx context.Context, sel Selector) error {
	_, err := evalElement[bool](ctx, s, sel, `el.click(); return {found: true, value: true};`)
	return err
}

func (s *Session) SelectedValue(ctx context.Context, sel Selector) (string, error) {
	return evalElement[string](ctx, s, sel, `return {found: true, value: String(el.value || '')};`)
}

func (s *Session) SetSelectValue(ctx context.Context, sel Selector, value string) error {
	v, _ := json.Marshal(value)
	ok, err := evalElement[bool](ctx, s, sel, fmt.Sprintf(`
		var v = %s, ok = false;
		for (var i = 0; i < el.options.length; i++) {
			if (el.options[i].value === v) { el.selectedIndex = i; ok = true; break; }
		}
		if (ok) {
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
		}
		return {found: true, value: ok};`, v))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("option %q in %s: %w", value, sel, ErrNotFound)
	}
	return nil
}

func (s *Session) Links(ctx context.Context, sel Selector) ([]string, error) {
	return evalElement[[]string](ctx, s, sel, `
		var hrefs = Array.prototype.map.call(el.querySelectorAll('a'), function(a) { return a.href || ''; });
		return {found: true, value: hrefs};`)
}

func (s *Session) OuterHTML(ctx context.Context, sel Selector) (string, error) {
	return evalElement[string](ctx, s, sel, `return {found: true, value: el.outerHTML};`)
}

func (s *Session) eval(ctx context.Context, expr string, res interface{}) error {
	runCtx, cancel := s.runContext(ctx, s.cfg.ScriptTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, res))
}

type elementResult[T any] struct {
	Found bool `json:"found"`
	Value T    `json:"value"`
}

// evalElement runs body with `el` bound to the element matched by sel. body
// must return {found: true, value: ...}.
func evalElement[T any](ctx context.Context, s *Session, sel Selector, body string) (T, error) {
	var res elementResult[T]
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) { return {found: false}; }
		%s
	})()`, lookupJS(sel), body)

	if err := s.eval(ctx, expr, &res); err != nil {
		var zero T
		return zero, fmt.Errorf("evaluate on %s: %w", sel, err)
	}
	if !res.Found {
		var zero T
		return zero, fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return res.Value, nil
}

func lookupJS(sel Selector) string {
	q, _ := json.Marshal(sel.Query)
	if sel.XPath {
		return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, q)
	}
	return fmt.Sprintf(`document.querySelector(%s)`, q)
}

// chromeCandidates are tried in order: bare names through PATH, then the
// usual install locations.
var chromeCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/snap/bin/chromium",
	"/opt/google/chrome/google-chrome",
}

// FindChromeBinary returns CHROME_BIN when set, otherwise the first installed
// candidate. An empty result lets chromedp fall back to its own lookup.
func FindChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, c := range chromeCandidates {
		if filepath.IsAbs(c) {
			if _, err := os.Stat(c); err == nil {
				return c
			}
			continue
		}
		if found, err := exec.LookPath(c); err == nil {
			return found
		}
	}
	return ""
}
