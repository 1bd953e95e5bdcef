// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/browser/session"
	"github.com/xkilldash9x/scalpel-agent/internal/config"
	"github.com/xkilldash9x/scalpel-agent/internal/env/browserenv"
	"github.com/xkilldash9x/scalpel-agent/internal/env/terminal"
	"github.com/xkilldash9x/scalpel-agent/internal/llmclient"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
	"github.com/xkilldash9x/scalpel-agent/internal/store"
)

// componentFactory builds the runtime pieces the commands need. Tests swap it
// for fakes so no browser, shell, model or database is required.
type componentFactory interface {
	// LLMClient returns the routed model client.
	LLMClient(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.LLMClient, error)
	// Environment opens an environment of the given namespace.
	Environment(ctx context.Context, cfg config.Interface, ns schemas.Namespace, logger *zap.Logger) (agent.Environment, error)
	// Archive opens the recall store. It returns a nil archive when recall
	// storage is disabled.
	Archive(ctx context.Context, cfg config.Interface, logger *zap.Logger) (memory.Archive, func(), error)
}

type defaultComponents struct{}

func (defaultComponents) LLMClient(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.LLMClient, error) {
	client, err := llmclient.NewClient(ctx, cfg.Agent(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

func (defaultComponents) Environment(ctx context.Context, cfg config.Interface, ns schemas.Namespace, logger *zap.Logger) (agent.Environment, error) {
	switch ns {
	case schemas.NamespaceBrowser:
		// The session owns the browser process; it outlives ctx until Close.
		sess, err := session.New(context.WithoutCancel(ctx), cfg.Browser(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		env, err := browserenv.New(logger, sess, nil, browserenv.Options{StartURL: cfg.Browser().StartURL})
		if err != nil {
			_ = sess.Close()
			return nil, err
		}
		return env, nil
	case schemas.NamespaceTerminal:
		env, err := terminal.New(logger, cfg.Terminal(), nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create terminal environment: %w", err)
		}
		return env, nil
	default:
		return nil, fmt.Errorf("unknown environment %q", ns)
	}
}

func (defaultComponents) Archive(ctx context.Context, cfg config.Interface, logger *zap.Logger) (memory.Archive, func(), error) {
	if !cfg.Recall().Enabled {
		return nil, func() {}, nil
	}
	recall, pool, err := store.Connect(ctx, cfg.Recall().Postgres.DSN(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to recall store: %w", err)
	}
	return recall, pool.Close, nil
}

// parseNamespace maps a command argument to an environment namespace.
func parseNamespace(name string) (schemas.Namespace, error) {
	switch ns := schemas.Namespace(strings.ToLower(strings.TrimSpace(name))); ns {
	case schemas.NamespaceBrowser, schemas.NamespaceTerminal:
		return ns, nil
	default:
		return "", fmt.Errorf("unknown environment %q (want browser or terminal)", name)
	}
}

// newAgent assembles an agent over env with a fresh working memory.
func newAgent(cfg config.Interface, logger *zap.Logger, client schemas.LLMClient, env agent.Environment, ns schemas.Namespace, archive memory.Archive, observer agent.Observer) (*agent.Agent, error) {
	memCfg := cfg.Memory()
	mem, err := memory.NewFIFO(memory.ApproxTokens, agent.NewLLMSummarizer(client), memory.Options{
		MaxSize:          memCfg.MaxSize,
		TriggerThreshold: memCfg.TriggerThreshold,
		TargetThreshold:  memCfg.TargetThreshold,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create working memory: %w", err)
	}

	opts := agent.Options{
		MaxSteps:    cfg.Agent().MaxSteps,
		StepTimeout: cfg.Agent().StepTimeout,
		Archive:     archive,
		Observer:    observer,
	}
	return agent.New(logger, env, agent.NewLLMMind(logger, client, ns), mem, opts), nil
}

// runOnce opens an environment, runs one objective in it and closes it.
func runOnce(ctx context.Context, components componentFactory, cfg config.Interface, logger *zap.Logger, client schemas.LLMClient, ns schemas.Namespace, archive memory.Archive, objective, start string, observer agent.Observer) (agent.RunResult, error) {
	env, err := components.Environment(ctx, cfg, ns, logger)
	if err != nil {
		return agent.RunResult{}, err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil {
			logger.Warn("Failed to close environment", zap.Error(cerr))
		}
	}()

	a, err := newAgent(cfg, logger, client, env, ns, archive, observer)
	if err != nil {
		return agent.RunResult{}, err
	}
	return a.Run(ctx, objective, start)
}
