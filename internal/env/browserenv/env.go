// Package browserenv exposes a browser tab as an agent environment: every
// observation is an indexed, serialized snapshot of the page and every
// command addresses elements by the ids of the latest snapshot.
package browserenv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-agent/internal/browser/session"
)

// BlankPage is loaded when the start URL is unusable.
const BlankPage = "about:blank"

// Page is the browser surface the environment acts through.
// *session.Session implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	StopLoading(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (string, error)
	Click(ctx context.Context, locator string) error
	Type(ctx context.Context, locator, text string, submit bool) error
	Scroll(ctx context.Context, direction string) error
	ScrollStatus(ctx context.Context) (session.ScrollStatus, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

var _ Page = (*session.Session)(nil)

// Options tune the environment.
type Options struct {
	// StartURL is used when Reset is given no start.
	StartURL string
	// Screenshots attaches a base64 PNG to every observation.
	Screenshots bool
}

// Env is a browser environment. It is not safe for concurrent use.
type Env struct {
	page     Page
	registry *agent.Registry[*Env]
	logger   *zap.Logger
	opts     Options

	frame  *dom.Frame
	done   bool
	answer string
}

var _ agent.Environment = (*Env)(nil)

// New wraps page. A nil registry selects DefaultRegistry.
func New(logger *zap.Logger, page Page, registry *agent.Registry[*Env], opts Options) (*Env, error) {
	if registry == nil {
		var err error
		if registry, err = DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	return &Env{
		page:     page,
		registry: registry,
		logger:   logger.Named("browserenv"),
		opts:     opts,
	}, nil
}

// NormalizeStartURL prefixes http:// when raw does not start with "http"
// and falls back to about:blank when the result is not an absolute web URL.
func NormalizeStartURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	if !validWebURL(raw) {
		return BlankPage
	}
	return raw
}

func validWebURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " _") {
		return false
	}
	return host == "localhost" || strings.Contains(host, ".") || strings.Contains(host, ":")
}

func (e *Env) info() agent.Info {
	return agent.Info{
		Namespace: schemas.NamespaceBrowser,
		Actions:   e.registry.Catalog(),
		Done:      e.done,
		Answer:    e.answer,
	}
}

// Reset opens the start page and observes it.
func (e *Env) Reset(ctx context.Context, opts agent.ResetOptions) (agent.Observation, agent.Info, error) {
	e.done, e.answer = false, ""
	e.invalidate()

	start := opts.Start
	if start == "" {
		start = e.opts.StartURL
	}
	target := NormalizeStartURL(start)
	e.logger.Info("Resetting browser environment.", zap.String("start", target))

	if err := e.page.Navigate(ctx, target); err != nil {
		switch classified := agent.ParseBrowserError(err, -1); {
		case errors.Is(classified, agent.ErrTimeout):
			e.logger.Warn("Start page load timed out; stopping load.", zap.Error(err))
			if err := e.page.StopLoading(ctx); err != nil {
				return agent.Observation{}, agent.Info{}, fmt.Errorf("failed to stop loading start page: %w", err)
			}
		case errors.Is(classified, agent.ErrInvalidTarget):
			e.logger.Warn("Start page unreachable; using blank page.", zap.Error(err))
			if err := e.page.Navigate(ctx, BlankPage); err != nil {
				return agent.Observation{}, agent.Info{}, fmt.Errorf("failed to open blank page: %w", err)
			}
		default:
			return agent.Observation{}, agent.Info{}, fmt.Errorf("failed to open start page: %w", err)
		}
	}

	obs, err := e.observe(ctx, nil)
	if err != nil {
		return agent.Observation{}, agent.Info{}, err
	}
	return obs, e.info(), nil
}

// Step dispatches cmd and observes the page that results.
func (e *Env) Step(ctx context.Context, cmd agent.Command) (agent.Observation, agent.Info, error) {
	var res agent.ActionResult
	if e.done {
		res = agent.Failed(agent.ErrCodeExecutionFailure, "The episode is complete. Reset to start a new one.")
	} else {
		var err error
		res, err = e.registry.Dispatch(ctx, e, cmd)
		if err != nil {
			return agent.Observation{}, agent.Info{}, fmt.Errorf("browser action %q failed: %w", cmd.Name, err)
		}
	}

	obs, err := e.observe(ctx, &res)
	if err != nil {
		return agent.Observation{}, agent.Info{}, err
	}
	return obs, e.info(), nil
}

// Close shuts the page down.
func (e *Env) Close() error {
	e.invalidate()
	return e.page.Close()
}

func (e *Env) invalidate() {
	if e.frame != nil {
		e.frame.Invalidate()
	}
}

// observe replaces the current frame with a fresh snapshot of the page.
func (e *Env) observe(ctx context.Context, last *agent.ActionResult) (agent.Observation, error) {
	e.invalidate()

	markup, err := e.page.Snapshot(ctx)
	if err != nil && errors.Is(agent.ParseBrowserError(err, -1), agent.ErrTimeout) {
		// A page still loading can hold the snapshot; stop it and retry once.
		if stopErr := e.page.StopLoading(ctx); stopErr == nil {
			markup, err = e.page.Snapshot(ctx)
		}
	}
	if err != nil {
		return agent.Observation{}, fmt.Errorf("failed to observe page: %w", err)
	}

	elements, err := dom.ParseSnapshot(strings.NewReader(markup))
	if err != nil {
		return agent.Observation{}, err
	}
	e.frame = dom.Index(elements)

	loc, err := e.page.URL(ctx)
	if err != nil {
		return agent.Observation{}, err
	}
	scroll, err := e.page.ScrollStatus(ctx)
	if err != nil {
		return agent.Observation{}, err
	}

	obs := agent.Observation{
		Location:   loc,
		Position:   scroll.Map(),
		Text:       e.frame.Serialize(),
		LastResult: last,
	}
	if e.opts.Screenshots {
		png, err := e.page.Screenshot(ctx)
		if err != nil {
			e.logger.Debug("Screenshot failed.", zap.Error(err))
		} else {
			obs.Screenshot = base64.StdEncoding.EncodeToString(png)
		}
	}
	e.logger.Debug("Page observed.", zap.String("url", loc), zap.Int("elements", e.frame.Len()),
		zap.Uint64("frame", e.frame.Seq()))
	return obs, nil
}

// lookup resolves an id of the current frame.
func (e *Env) lookup(id int) (dom.Handle, error) {
	var idx *dom.ElementIndex
	if e.frame != nil {
		idx = e.frame.Index()
	}
	h, err := idx.Lookup(id)
	if err != nil {
		return dom.Handle{}, &agent.ElementError{ID: id, Err: err}
	}
	return h, nil
}
