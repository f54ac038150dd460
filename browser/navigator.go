package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/utils"
)

// LoadPolicy bounds how hard Navigator.Load tries to get a page ready.
type LoadPolicy struct {
	MaxAttempts  int
	ReadyTimeout time.Duration
	Poll         time.Duration
	// AdMarkers are substrings of the page source that indicate an ad
	// interstitial. A ready page containing one is reloaded once per attempt.
	AdMarkers []string
}

type loadState int

const (
	stateAttempting loadState = iota
	stateReadyCheck
	stateAdDetectedRefresh
	stateExhausted
)

func (s loadState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateReadyCheck:
		return "ready-check"
	case stateAdDetectedRefresh:
		return "ad-refresh"
	case stateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Navigator loads pages with retry-and-refresh semantics.
type Navigator struct {
	b        Browser
	throttle *utils.Throttle
	logger   *utils.Logger
}

// NewNavigator creates a Navigator over b. throttle may be nil.
func NewNavigator(b Browser, throttle *utils.Throttle, logger *utils.Logger) *Navigator {
	return &Navigator{b: b, throttle: throttle, logger: logger}
}

// Load navigates to url and waits for ready. A ready-wait timeout reloads the
// page as the next attempt; a navigation error navigates afresh. Once the
// attempts are spent a page_load ScrapeError is returned and the caller is
// expected to skip the URL.
func (n *Navigator) Load(ctx context.Context, url string, policy LoadPolicy, ready Predicate) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	state := stateAttempting
	attempt := 0
	reloadNext := false
	adRefreshed := false
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n.logger.Debug("[navigator] %s: state %s (attempt %d/%d)", url, state, attempt, maxAttempts)

		switch state {
		case stateAttempting:
			if attempt >= maxAttempts {
				state = stateExhausted
				continue
			}
			attempt++
			adRefreshed = false

			if err := n.throttle.Wait(ctx); err != nil {
				return err
			}

			var err error
			if reloadNext {
				n.logger.Info("[navigator] Reloading %s (attempt %d/%d)", url, attempt, maxAttempts)
				err = n.b.Reload(ctx)
			} else {
				n.logger.Info("[navigator] Loading %s (attempt %d/%d)", url, attempt, maxAttempts)
				err = n.b.Navigate(ctx, url)
			}
			reloadNext = false
			if err != nil {
				lastErr = err
				n.logger.Warn("[navigator] Load error for %s: %v", url, err)
				continue
			}
			state = stateReadyCheck

		case stateReadyCheck:
			if err := WaitUntil(ctx, policy.ReadyTimeout, policy.Poll, ready); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				lastErr = err
				n.logger.Warn("[navigator] Page load timed out for %s, refreshing", url)
				reloadNext = true
				state = stateAttempting
				continue
			}
			if !adRefreshed && n.adDetected(ctx, policy.AdMarkers) {
				state = stateAdDetectedRefresh
				continue
			}
			return nil

		case stateAdDetectedRefresh:
			adRefreshed = true
			n.logger.Info("[navigator] Ad detected on %s, refreshing page", url)
			if err := n.b.Reload(ctx); err != nil {
				lastErr = err
				n.logger.Warn("[navigator] Refresh failed for %s: %v", url, err)
				state = stateAttempting
				continue
			}
			state = stateReadyCheck

		case stateExhausted:
			n.logger.Error("[navigator] Failed to load %s after %d attempts", url, maxAttempts)
			return scrapeerrors.NewPageLoad(url,
				fmt.Sprintf("not ready after %d attempts", maxAttempts), lastErr)
		}
	}
}

func (n *Navigator) adDetected(ctx context.Context, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	src, err := n.b.PageSource(ctx)
	if err != nil {
		n.logger.Debug("[navigator] Could not read page source for ad check: %v", err)
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(src, m) {
			return true
		}
	}
	return false
}
