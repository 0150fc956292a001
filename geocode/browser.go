package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const osmSearchURL = "https://www.openstreetmap.org/search?query="

// BrowserGeocoder resolves addresses through the OpenStreetMap search page
// rendered in a headless Chrome. It is the keyless alternative to Kakao.
type BrowserGeocoder struct {
	chromeBin string
	settle    time.Duration
	timeout   time.Duration
	logger    *utils.Logger
	retry     *utils.RetryConfig

	once        sync.Once
	startErr    error
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewBrowserGeocoder creates a BrowserGeocoder. The browser is started on first use.
func NewBrowserGeocoder(chromeBin string, maxRetries int, logger *utils.Logger) *BrowserGeocoder {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	return &BrowserGeocoder{
		chromeBin: chromeBin,
		settle:    3 * time.Second,
		timeout:   45 * time.Second,
		logger:    logger,
		retry: &utils.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

func (g *BrowserGeocoder) Name() string { return "browser" }

func (g *BrowserGeocoder) start() {
	g.logger.Info("[geocode] Using browser binary: %s", g.chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if g.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(g.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	g.browserCtx = browserCtx
	g.cancelAlloc = cancelAlloc
	g.cancelTab = cancelTab

	// Running with no actions launches the browser so tabs share it.
	if err := chromedp.Run(browserCtx); err != nil {
		g.startErr = fmt.Errorf("starting browser: %w", err)
	}
}

// Close shuts the browser down. It is safe to call on an unused geocoder.
func (g *BrowserGeocoder) Close() {
	if g.cancelTab != nil {
		g.cancelTab()
	}
	if g.cancelAlloc != nil {
		g.cancelAlloc()
	}
}

type osmHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode opens a fresh tab per lookup and reads the first search hit.
func (g *BrowserGeocoder) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	g.once.Do(g.start)
	if g.startErr != nil {
		return models.Coordinates{}, g.startErr
	}

	var (
		hit   osmHit
		found bool
	)
	err := g.retry.DoContext(ctx, "osm-search", func(ctx context.Context) error {
		tabCtx, cancel := chromedp.NewContext(g.browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, g.timeout)
		defer cancelTimeout()

		// The caller's deadline also bounds the tab.
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		hit = osmHit{}
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(osmSearchURL+url.QueryEscape(address)),
			chromedp.Sleep(g.settle),
			chromedp.Evaluate(`
				(function() {
					var a = document.querySelector('a.set_position[data-lat][data-lon]');
					if (!a) return {lat: '', lon: ''};
					return {lat: a.getAttribute('data-lat'), lon: a.getAttribute('data-lon')};
				})()
			`, &hit),
		)
		if err != nil {
			return fmt.Errorf("chromedp osm search: %w", err)
		}
		found = hit.Lat != "" && hit.Lon != ""
		return nil
	})
	if err != nil {
		return models.Coordinates{}, err
	}
	if !found {
		return models.Coordinates{}, ErrNotFound
	}
	return parseHit(hit)
}

func parseHit(hit osmHit) (models.Coordinates, error) {
	lat, err := strconv.ParseFloat(hit.Lat, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("parsing latitude %q: %w", hit.Lat, err)
	}
	lon, err := strconv.ParseFloat(hit.Lon, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("parsing longitude %q: %w", hit.Lon, err)
	}
	c := models.Coordinates{Latitude: lat, Longitude: lon}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return models.Coordinates{}, errors.New("search hit out of range")
	}
	return c, nil
}

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
