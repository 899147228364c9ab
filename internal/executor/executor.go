// Package executor runs one agent once:
//
//	skill preamble + system prompt → user prompt + input →
//	text-generation call → refusal check → reply.
//
// It holds no session state; the pipeline engine decides what to run and
// what to do with the result.
package executor

import (
	"context"
	"strings"

	"github.com/reviewstudio/studio/internal/guardrails"
	"github.com/reviewstudio/studio/pkg/contracts"
	"github.com/reviewstudio/studio/pkg/models"
)

// InputSeparator sits between an agent's user prompt and the step input.
const InputSeparator = "\n\n---\nINPUT:\n"

// Executor turns an agent definition and an input into a generation call.
type Executor struct {
	gen contracts.TextGenerator
}

// NewExecutor creates an executor on top of a text generator.
func NewExecutor(gen contracts.TextGenerator) *Executor {
	return &Executor{gen: gen}
}

// SystemPrompt prefixes the agent's system prompt with the session skill text.
func SystemPrompt(skill, system string) string {
	return strings.TrimSpace(strings.TrimSpace(skill) + "\n\n" + strings.TrimSpace(system))
}

// UserPrompt appends the step input to the agent's user prompt.
func UserPrompt(userPrompt, input string) string {
	return strings.TrimSpace(userPrompt) + InputSeparator + input
}

// BuildRequest assembles the generation request for one agent invocation.
func BuildRequest(agent models.AgentDefinition, skill, input string, creds map[models.ProviderKind]string) *models.GenerateRequest {
	return &models.GenerateRequest{
		Provider:           agent.Provider,
		Model:              agent.Model,
		SystemPrompt:       SystemPrompt(skill, agent.SystemPrompt),
		UserPrompt:         UserPrompt(agent.UserPrompt, input),
		MaxTokens:          agent.MaxTokens,
		Temperature:        agent.Temperature,
		SessionCredentials: creds,
	}
}

// Execute invokes the agent. A reply that is only a refusal is reported as
// models.ErrPolicyRefusal.
func (e *Executor) Execute(ctx context.Context, agent models.AgentDefinition, skill, input string, creds map[models.ProviderKind]string) (*models.GenerateResponse, error) {
	return e.Generate(ctx, BuildRequest(agent, skill, input, creds))
}

// Generate sends a prepared request and applies the refusal check.
func (e *Executor) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := guardrails.CheckOutput(req.Provider, resp.Content); err != nil {
		return nil, err
	}
	return resp, nil
}
