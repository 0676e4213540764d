package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/config"
)

// By selects how a Selector query is interpreted.
type By int

const (
	ByID By = iota
	ByQuery
	ByName
	ByXPath
)

// Selector locates one element on a page
type Selector struct {
	Query string
	By    By
}

func (s Selector) String() string {
	switch s.By {
	case ByID:
		return "#" + s.Query
	case ByName:
		return fmt.Sprintf(`[name=%q]`, s.Query)
	default:
		return s.Query
	}
}

// Driver is one exclusively owned browser session. Wait calls block until the
// element is present (or visible) or ctx expires.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel Selector) error
	WaitPresent(ctx context.Context, sel Selector) error
	SendKeys(ctx context.Context, sel Selector, text string) error
	SetUploadFiles(ctx context.Context, sel Selector, paths []string) error
	Click(ctx context.Context, sel Selector) error
	Close() error
}

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// ChromeLauncher starts headless Chrome sessions through chromedp
type ChromeLauncher struct {
	headless bool
	execPath string
	logger   *zap.Logger
}

// NewChromeLauncher creates a launcher from the browser settings
func NewChromeLauncher(cfg *config.BrowserConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		headless: cfg.Headless,
		execPath: cfg.ExecPath,
		logger:   logger.Named("browser"),
	}
}

// Launch starts a new browser process. The session is tied to the process
// lifetime rather than ctx; callers must Close it.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Warnf),
	)

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	l.logger.Info("Browser started", zap.Bool("headless", l.headless))
	return &chromeDriver{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		logger: l.logger,
	}, nil
}

type chromeDriver struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *zap.Logger
}

// run executes actions on the browser context, bounded by the caller's ctx.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func queryOpt(sel Selector) (string, chromedp.QueryOption) {
	switch sel.By {
	case ByID:
		return sel.Query, chromedp.ByID
	case ByXPath:
		return sel.Query, chromedp.BySearch
	case ByName:
		return fmt.Sprintf(`[name=%q]`, sel.Query), chromedp.ByQuery
	default:
		return sel.Query, chromedp.ByQuery
	}
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) WaitVisible(ctx context.Context, sel Selector) error {
	q, by := queryOpt(sel)
	return d.run(ctx, chromedp.WaitVisible(q, by))
}

func (d *chromeDriver) WaitPresent(ctx context.Context, sel Selector) error {
	q, by := queryOpt(sel)
	return d.run(ctx, chromedp.WaitReady(q, by))
}

func (d *chromeDriver) SendKeys(ctx context.Context, sel Selector, text string) error {
	q, by := queryOpt(sel)
	return d.run(ctx,
		chromedp.Clear(q, by),
		chromedp.SendKeys(q, text, by),
	)
}

func (d *chromeDriver) SetUploadFiles(ctx context.Context, sel Selector, paths []string) error {
	q, by := queryOpt(sel)
	return d.run(ctx, chromedp.SetUploadFiles(q, paths, by))
}

func (d *chromeDriver) Click(ctx context.Context, sel Selector) error {
	q, by := queryOpt(sel)
	return d.run(ctx, chromedp.Click(q, by))
}

// Close shuts the browser down. It is safe to call more than once.
func (d *chromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.logger.Info("Browser closed")
	})
	return nil
}
