// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/config"
)

// ErrNoSuchOption is returned when a select has no option matching the text
// to choose.
var ErrNoSuchOption = errors.New("no matching option")

// Session is a single headless Chrome tab driven over CDP. Elements are
// addressed by XPath locators taken from a snapshot.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig

	closeOnce sync.Once
}

// ExecOptions builds the allocator options for cfg.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	// Extra flags: "key=value" or a bare boolean "key".
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// New launches a browser and opens a tab sized to the configured viewport.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.NewString()
	log := logger.Named("browser").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))

	s := &Session{
		id:          id,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
		cfg:         cfg,
	}

	// The first Run starts the browser and attaches to the tab.
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)),
	); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.Viewport.Width), zap.Int("height", cfg.Viewport.Height))
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// run executes actions bounded by the session lifetime, ctx and timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) pageLoadTimeout() time.Duration {
	if s.cfg.PageLoadTimeout > 0 {
		return s.cfg.PageLoadTimeout
	}
	return 20 * time.Second
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url))
	if err := s.run(ctx, s.pageLoadTimeout(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Back goes one entry back in the tab history.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, s.pageLoadTimeout(), chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back failed: %w", err)
	}
	return nil
}

// Forward goes one entry forward in the tab history.
func (s *Session) Forward(ctx context.Context) error {
	if err := s.run(ctx, s.pageLoadTimeout(), chromedp.NavigateForward()); err != nil {
		return fmt.Errorf("navigate forward failed: %w", err)
	}
	return nil
}

// StopLoading aborts any pending navigation, like window.stop().
func (s *Session) StopLoading(ctx context.Context) error {
	return s.run(ctx, 5*time.Second, page.StopLoading())
}

// URL returns the location of the current document.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, 5*time.Second, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Snapshot annotates the live DOM with layout marks and returns its markup.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var (
		marked int
		markup string
	)
	err := s.run(ctx, s.pageLoadTimeout(),
		chromedp.Evaluate(annotateScript, &marked),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	s.logger.Debug("Page snapshot taken.", zap.Int("elements", marked), zap.Int("bytes", len(markup)))
	return markup, nil
}

// inspectResult is what inspectScript reports about a locator.
type inspectResult struct {
	Status string `json:"status"`
	Tag    string `json:"tag"`
	By     string `json:"by"`
}

// inspectError turns a failed inspection into an error whose text the agent's
// error classifier recognizes.
func inspectError(locator string, p inspectResult) error {
	switch p.Status {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("no element found for %s", locator)
	case "hidden":
		return fmt.Errorf("element %s is not visible", locator)
	case "zero":
		return fmt.Errorf("element %s has zero size and is not interactable", locator)
	case "obscured":
		return fmt.Errorf("element %s is obscured by <%s>", locator, p.By)
	}
	return fmt.Errorf("unexpected inspect status %q for %s", p.Status, locator)
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *Session) inspect(ctx context.Context, locator string) (inspectResult, error) {
	var res inspectResult
	if err := s.run(ctx, 5*time.Second, chromedp.Evaluate(fmt.Sprintf(inspectScript, jsString(locator)), &res)); err != nil {
		return res, fmt.Errorf("failed to inspect %s: %w", locator, err)
	}
	return res, inspectError(locator, res)
}

// settle waits for the document to be ready after an action that may have
// navigated.
func (s *Session) settle(ctx context.Context) error {
	return s.run(ctx, s.pageLoadTimeout(), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Click clicks the element at locator.
func (s *Session) Click(ctx context.Context, locator string) error {
	s.logger.Debug("Attempting to click element", zap.String("locator", locator))
	if _, err := s.inspect(ctx, locator); err != nil {
		return err
	}
	if err := s.run(ctx, s.pageLoadTimeout(), chromedp.Click(locator, chromedp.BySearch)); err != nil {
		return fmt.Errorf("click action failed for %s: %w", locator, err)
	}
	return s.settle(ctx)
}

// Type replaces the value of the field at locator with text, choosing the
// matching option for a select. With submit, Enter is pressed afterwards.
func (s *Session) Type(ctx context.Context, locator, text string, submit bool) error {
	s.logger.Debug("Attempting to type into element", zap.String("locator", locator), zap.Int("text_length", len(text)))
	p, err := s.inspect(ctx, locator)
	if err != nil {
		return err
	}

	timeout := 15*time.Second + time.Duration(float64(len(text))/2.5)*time.Second
	if p.Tag == "select" {
		var chosen bool
		if err := s.run(ctx, timeout, chromedp.Evaluate(fmt.Sprintf(selectScript, jsString(locator), jsString(text)), &chosen)); err != nil {
			return fmt.Errorf("select action failed for %s: %w", locator, err)
		}
		if !chosen {
			return fmt.Errorf("%w: %q", ErrNoSuchOption, text)
		}
		return nil
	}

	actions := []chromedp.Action{
		chromedp.Focus(locator, chromedp.BySearch),
		chromedp.Evaluate(fmt.Sprintf(clearScript, jsString(locator)), nil),
		chromedp.SendKeys(locator, text, chromedp.BySearch),
	}
	if submit {
		actions = append(actions, chromedp.SendKeys(locator, kb.Enter, chromedp.BySearch))
	}
	if err := s.run(ctx, timeout, actions...); err != nil {
		return fmt.Errorf("type action failed for %s: %w", locator, err)
	}
	if submit {
		return s.settle(ctx)
	}
	return nil
}

// Scroll moves the viewport one window height up or down.
func (s *Session) Scroll(ctx context.Context, direction string) error {
	var script string
	switch direction {
	case "down":
		script = `window.scrollBy(0, window.innerHeight);`
	case "up":
		script = `window.scrollBy(0, -window.innerHeight);`
	default:
		return fmt.Errorf("invalid scroll direction: %s (supported: up, down)", direction)
	}

	timeout := s.cfg.ScrollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := s.run(ctx, timeout, chromedp.Evaluate(script, nil), chromedp.Sleep(250*time.Millisecond)); err != nil {
		return fmt.Errorf("scroll action failed: %w", err)
	}
	return nil
}

// ScrollStatus reports how far the page is scrolled.
func (s *Session) ScrollStatus(ctx context.Context) (ScrollStatus, error) {
	var m ScrollMetrics
	if err := s.run(ctx, 5*time.Second, chromedp.Evaluate(scrollMetricsScript, &m)); err != nil {
		return ScrollStatus{}, fmt.Errorf("failed to read scroll status: %w", err)
	}
	return m.Status(), nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, 10*time.Second, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session.")
		if cerr := chromedp.Cancel(s.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
		s.cancel()
		s.allocCancel()
	})
	return err
}
