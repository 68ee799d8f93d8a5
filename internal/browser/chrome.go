package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const livenessTimeout = 5 * time.Second

// Options configures the Chrome process.
type Options struct {
	UserDataDir  string
	Headless     bool
	ExecPath     string
	WindowWidth  int
	WindowHeight int
}

// ChromeSession is a Session backed by chromedp.
type ChromeSession struct {
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	tab         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	detached    atomic.Bool
}

// NewChromeSession returns an unopened session.
func NewChromeSession(opts Options, log *zap.Logger) *ChromeSession {
	if log == nil {
		log = zap.L()
	}
	if opts.WindowWidth == 0 || opts.WindowHeight == 0 {
		opts.WindowWidth, opts.WindowHeight = 1920, 1080
	}
	return &ChromeSession{opts: opts, log: log.Named("browser")}
}

func (c *ChromeSession) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-features", "site-per-process"),
		chromedp.DisableGPU,
		chromedp.WindowSize(c.opts.WindowWidth, c.opts.WindowHeight),
	)
	if c.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(c.opts.UserDataDir))
	}
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}

// Open launches Chrome and attaches to its first tab. It is a no-op on an
// open session.
func (c *ChromeSession) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tab != nil {
		return nil
	}

	sugar := c.log.Sugar()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	tab, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	c.detached.Store(false)
	chromedp.ListenTarget(tab, func(ev interface{}) {
		switch ev := ev.(type) {
		case *inspector.EventDetached:
			c.log.Warn("page detached", zap.String("reason", string(ev.Reason)))
			c.detached.Store(true)
		case *inspector.EventTargetCrashed:
			c.log.Warn("page crashed")
			c.detached.Store(true)
		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails != nil {
				c.log.Debug("page error", zap.String("text", ev.ExceptionDetails.Text))
			}
		}
	})

	// The first Run starts the browser. Cancelling the startup context
	// before it returns tears the browser down.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tab)
	stop()
	if err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	c.tab, c.cancel, c.allocCancel = tab, cancel, allocCancel
	c.log.Info("browser started",
		zap.Bool("headless", c.opts.Headless),
		zap.String("user_data_dir", c.opts.UserDataDir))
	return nil
}

func (c *ChromeSession) current() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == nil {
		return nil, ErrNotOpen
	}
	return c.tab, nil
}

func (c *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tab, err := c.current()
	if err != nil {
		return err
	}
	if c.detached.Load() {
		return ErrDetached
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(tab, timeout)
	} else {
		runCtx, cancel = context.WithCancel(tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return c.wrap(tab, err)
	}
	return nil
}

// detachedMarkers are substrings of DevTools errors raised when the page or
// its execution context went away underneath a call.
var detachedMarkers = []string{
	"detached",
	"target closed",
	"cannot find context with specified id",
	"no target with given id",
	"session with given id not found",
	"execution context was destroyed",
}

func (c *ChromeSession) wrap(tab context.Context, err error) error {
	if tab.Err() != nil || c.detached.Load() {
		return fmt.Errorf("%w: %v", ErrDetached, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range detachedMarkers {
		if strings.Contains(msg, m) {
			c.detached.Store(true)
			return fmt.Errorf("%w: %v", ErrDetached, err)
		}
	}
	return err
}

// Navigate loads url and waits for the load event.
func (c *ChromeSession) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, 0, chromedp.Navigate(url))
}

// WaitVisible blocks until selector matches a visible element.
func (c *ChromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Evaluate runs expression in the page.
func (c *ChromeSession) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if out == nil {
		var discard []byte
		out = &discard
	}
	return c.run(ctx, 0, chromedp.Evaluate(expression, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// Screenshot captures the first element matching selector as PNG.
func (c *ChromeSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, livenessTimeout, chromedp.Screenshot(selector, &buf, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

// IsLive reports whether the tab still answers a trivial evaluation.
func (c *ChromeSession) IsLive(ctx context.Context) bool {
	var state string
	err := c.run(ctx, livenessTimeout, chromedp.Evaluate(`document.readyState`, &state))
	return err == nil
}

// Close shuts the browser down. It is safe to call on a closed session.
func (c *ChromeSession) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tab == nil {
		return nil
	}

	err := chromedp.Cancel(c.tab)
	c.cancel()
	c.allocCancel()
	c.tab, c.cancel, c.allocCancel = nil, nil, nil
	c.detached.Store(false)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	c.log.Info("browser closed")
	return nil
}
