package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metal-price-scraper/browser"
	"metal-price-scraper/browser/browsertest"
	scrapeerrors "metal-price-scraper/pkg/errors"
	"metal-price-scraper/utils"
)

const (
	archiveURL   = "https://example.com/datearchive.php"
	readyPage    = `<html><body><div id="accordion"></div></body></html>`
	notReadyPage = `<html><body><p>loading</p></body></html>`
	adPage       = `<html><body><ins class="adsbygoogle"></ins><div id="accordion"></div></body></html>`
)

func testPolicy() browser.LoadPolicy {
	return browser.LoadPolicy{
		MaxAttempts:  3,
		ReadyTimeout: 20 * time.Millisecond,
		Poll:         2 * time.Millisecond,
		AdMarkers:    []string{"google-auto-placed", "adsbygoogle"},
	}
}

func load(t *testing.T, b *browsertest.Browser, ctx context.Context) error {
	t.Helper()
	nav := browser.NewNavigator(b, nil, utils.NewNopLogger())
	return nav.Load(ctx, archiveURL, testPolicy(), browser.Present(b, browser.CSS("#accordion")))
}

func TestLoadReadyFirstAttempt(t *testing.T) {
	b := browsertest.New()
	b.AddPage(archiveURL, readyPage)

	require.NoError(t, load(t, b, context.Background()))
	assert.Equal(t, []string{archiveURL}, b.Navigations)
	assert.Equal(t, 0, b.Reloads)
}

func TestLoadRefreshesOnceWhenAdDetected(t *testing.T) {
	b := browsertest.New()
	p := b.AddPage(archiveURL, adPage)
	p.ReloadHTML = readyPage

	require.NoError(t, load(t, b, context.Background()))
	assert.Len(t, b.Navigations, 1)
	assert.Equal(t, 1, b.Reloads)
}

func TestLoadAcceptsPersistentAdAfterOneRefresh(t *testing.T) {
	b := browsertest.New()
	b.AddPage(archiveURL, adPage)

	require.NoError(t, load(t, b, context.Background()))
	assert.Len(t, b.Navigations, 1)
	assert.Equal(t, 1, b.Reloads, "the ad refresh happens once per attempt")
}

func TestLoadReloadsAfterTimeout(t *testing.T) {
	b := browsertest.New()
	p := b.AddPage(archiveURL, notReadyPage)
	p.ReloadHTML = readyPage

	require.NoError(t, load(t, b, context.Background()))
	assert.Len(t, b.Navigations, 1)
	assert.Equal(t, 1, b.Reloads)
}

func TestLoadExhaustsRetries(t *testing.T) {
	b := browsertest.New()
	b.AddPage(archiveURL, notReadyPage)

	err := load(t, b, context.Background())
	require.Error(t, err)
	assert.Equal(t, scrapeerrors.KindPageLoad, scrapeerrors.KindOf(err))
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Len(t, b.Navigations, 1)
	assert.Equal(t, 2, b.Reloads, "attempts 2 and 3 reload the timed-out page")
}

func TestLoadNavigationErrorsRetryFresh(t *testing.T) {
	b := browsertest.New()
	netErr := errors.New("net::ERR_CONNECTION_RESET")
	b.AddPage(archiveURL, readyPage).NavigateErr = netErr

	err := load(t, b, context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.Len(t, b.Navigations, 3)
	assert.Equal(t, 0, b.Reloads)
}

func TestLoadStopsOnCancelledContext(t *testing.T) {
	b := browsertest.New()
	b.AddPage(archiveURL, readyPage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := load(t, b, ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Navigations)
}

func TestLoadThrottlesBetweenAttempts(t *testing.T) {
	b := browsertest.New()
	b.AddPage(archiveURL, readyPage).NavigateErr = errors.New("refused")

	nav := browser.NewNavigator(b, utils.NewThrottle(15), utils.NewNopLogger())
	start := time.Now()
	err := nav.Load(context.Background(), archiveURL, testPolicy(), browser.Present(b, browser.CSS("#accordion")))

	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "three attempts need two throttle gaps")
}
