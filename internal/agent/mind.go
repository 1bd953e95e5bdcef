// internal/agent/mind.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
)

// Prompt is everything the model sees on one turn.
type Prompt struct {
	Objective   string
	Observation Observation
	// Memory is the rendered working memory transcript.
	Memory  string
	Actions []ActionInfo
}

// Decider chooses the next command.
type Decider interface {
	Decide(ctx context.Context, p Prompt) (schemas.Reply, error)
}

// LLMMind decides by asking the powerful model tier for a JSON reply.
type LLMMind struct {
	client    schemas.LLMClient
	namespace schemas.Namespace
	logger    *zap.Logger
}

// Statically assert that LLMMind implements the Decider interface.
var _ Decider = (*LLMMind)(nil)

// NewLLMMind creates a mind driving an environment of namespace ns.
func NewLLMMind(logger *zap.Logger, client schemas.LLMClient, ns schemas.Namespace) *LLMMind {
	return &LLMMind{
		client:    client,
		namespace: ns,
		logger:    logger.Named("llm_mind").With(zap.String("namespace", string(ns))),
	}
}

// Decide renders the prompt, calls the model and validates its reply.
// Transport failures are wrapped; malformed replies are *ValidationError.
func (m *LLMMind) Decide(ctx context.Context, p Prompt) (schemas.Reply, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: SystemPrompt(m.namespace, p.Actions),
		UserPrompt:   UserPrompt(m.namespace, p),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.2,
		},
	}

	raw, err := m.client.Generate(ctx, req)
	if err != nil {
		return schemas.Reply{}, fmt.Errorf("llm generation failed: %w", err)
	}

	reply, err := ParseReply(raw, m.namespace)
	if err != nil {
		m.logger.Warn("Model reply rejected.", zap.Error(err), zap.String("raw_response", raw))
		return schemas.Reply{}, err
	}
	m.logger.Debug("Decided next command.",
		zap.String("command", reply.Command), zap.String("rationale", reply.Rationale))
	return reply, nil
}
