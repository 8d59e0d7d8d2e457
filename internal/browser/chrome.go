package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	log "github.com/sirupsen/logrus"
)

// stealthHeaders mimic a desktop browser's first navigation.
var stealthHeaders = network.Headers{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

// Chrome launches one headless Chrome process per session.
type Chrome struct {
	config config.BrowserConfig
}

func NewChrome(cfg config.BrowserConfig) *Chrome {
	return &Chrome{config: cfg}
}

func (c *Chrome) Open(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.config.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.URL()))
	}
	if c.config.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.config.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))

	s := &chromeSession{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		navigationTimeout: opts.NavigationTimeout,
		pageTimeout:       opts.PageTimeout,
		scrollPresses:     c.config.ScrollPresses,
		scrollInterval:    config.Millis(c.config.ScrollIntervalMs),
	}

	// The first Run starts the browser; it must use the undecorated tab
	// context so later per-call timeouts do not tear the process down.
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(stealthHeaders),
		chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)),
	); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return s, nil
}

type chromeSession struct {
	ctx               context.Context
	cancel            context.CancelFunc
	navigationTimeout time.Duration
	pageTimeout       time.Duration
	scrollPresses     int
	scrollInterval    time.Duration
}

func (s *chromeSession) Navigate(url string) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.navigationTimeout)
	defer cancel()

	resp, err := chromedp.RunResponse(ctx, chromedp.Navigate(url))
	if err != nil {
		return 0, fmt.Errorf("navigate: %w", err)
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (s *chromeSession) Scroll() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.pageTimeout)
	defer cancel()

	var hasMain bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.querySelector('[role="main"]') !== null`, &hasMain)); err != nil {
		return fmt.Errorf("find main region: %w", err)
	}

	tasks := chromedp.Tasks{}
	if hasMain {
		tasks = append(tasks,
			chromedp.Click(`[role="main"]`, chromedp.ByQuery),
			chromedp.Sleep(300*time.Millisecond),
		)
	}
	for i := 0; i < s.scrollPresses; i++ {
		tasks = append(tasks,
			chromedp.KeyEvent(kb.PageDown),
			chromedp.Sleep(s.scrollInterval),
		)
	}
	tasks = append(tasks, chromedp.Sleep(time.Second))

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *chromeSession) Labels(substr string) ([]string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.pageTimeout)
	defer cancel()

	var labels []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(labelScript(substr), &labels)); err != nil {
		return nil, fmt.Errorf("collect labels: %w", err)
	}
	return labels, nil
}

func (s *chromeSession) Content() (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.pageTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

// labelScript selects every element whose aria-label contains substr and
// returns the non-empty labels.
func labelScript(substr string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll('[aria-label*=%q]')).map(e => e.getAttribute('aria-label')).filter(l => l)`,
		substr,
	)
}
