// Package workflow implements the review pipeline engine.
//
// A pipeline is the session's ordered agent list. Each step:
//  1. Checks the session's mana gauge (refused before any provider call)
//  2. Marks the agent running and calls the provider through the executor
//  3. On success deducts mana, stores a PipelineRun and marks the agent success
//  4. On failure marks the agent error and stops the pipeline
//
// Every attempt is written to the session log, the run journal and a span.
// The engine holds the session lock for the whole of an action, so actions
// on one session never interleave.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reviewstudio/studio/internal/executor"
	"github.com/reviewstudio/studio/internal/guardrails"
	"github.com/reviewstudio/studio/internal/highlight"
	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/contracts"
	"github.com/reviewstudio/studio/pkg/models"
)

var tracer = otel.Tracer("reviewstudio-workflow")

// Options tunes an Engine. Zero values fall back to the defaults.
type Options struct {
	// StepCost is the mana one generation call consumes.
	StepCost int
	// Timeout bounds a single provider call. Zero means no engine deadline.
	Timeout time.Duration
	// Keywords feeds the note highlighter. Empty uses the default ontology.
	Keywords []string
}

// Engine executes agents against sessions.
type Engine struct {
	exec    *executor.Executor
	journal store.TraceStore
	cost    int
	timeout time.Duration
	hl      *highlight.Highlighter
}

// NewEngine creates a pipeline engine. journal may be nil.
func NewEngine(gen contracts.TextGenerator, journal store.TraceStore, opts Options) *Engine {
	if opts.StepCost <= 0 {
		opts.StepCost = sessions.DefaultStepCost
	}
	return &Engine{
		exec:    executor.NewExecutor(gen),
		journal: journal,
		cost:    opts.StepCost,
		timeout: opts.Timeout,
		hl:      highlight.New(opts.Keywords),
	}
}

// StepCost returns the mana charged per generation call.
func (e *Engine) StepCost() int { return e.cost }

// RunStep runs one agent of the session's configuration on input.
func (e *Engine) RunStep(ctx context.Context, sess *sessions.Session, agentID, input string) (*models.PipelineRun, error) {
	sess.Lock()
	defer sess.Unlock()

	pos := sess.Agents.Index(agentID)
	if pos < 0 {
		return nil, &store.ErrNotFound{Entity: "agent", Key: agentID}
	}
	run, err := e.runStep(ctx, sess, pos, sess.Agents.Agents[pos], input)
	return copyRun(run), err
}

// RunSingleStep runs one agent independently of pipeline sequencing. A nil
// req.Input is resolved from req.Source. req.Override applies to a copy of
// the agent and is not remembered.
func (e *Engine) RunSingleStep(ctx context.Context, sess *sessions.Session, req models.StepRequest) (*models.PipelineRun, error) {
	sess.Lock()
	defer sess.Unlock()

	pos := sess.Agents.Index(req.AgentID)
	if pos < 0 {
		return nil, &store.ErrNotFound{Entity: "agent", Key: req.AgentID}
	}
	agent := sess.Agents.Agents[pos]
	if req.Override != nil {
		if err := req.Override.Validate(); err != nil {
			return nil, e.fail(ctx, sess, pos, agent, "", time.Now(), err)
		}
		req.Override.Apply(&agent)
	}

	input := ""
	if req.Input != nil {
		input = *req.Input
	} else {
		input = sess.ResolveInput(req.Source)
	}
	run, err := e.runStep(ctx, sess, pos, agent, input)
	return copyRun(run), err
}

// RunFullPipeline runs every agent in order. Step 0 reads globalInput; each
// later step reads the previous agent's latest output, edited text first.
// Overrides are written into the session's agents before the step runs and
// stay there. The pipeline halts at the first failure and keeps earlier runs.
func (e *Engine) RunFullPipeline(ctx context.Context, sess *sessions.Session, globalInput string, overrides map[string]models.AgentOverride) (*models.PipelineResult, error) {
	sess.Lock()
	defer sess.Unlock()

	result := &models.PipelineResult{Steps: []models.StepOutcome{}, Runs: []models.PipelineRun{}}
	ids := make([]string, len(sess.Agents.Agents))
	for i, a := range sess.Agents.Agents {
		ids[i] = a.ID
	}

	log.Info().
		Str("session", sess.ID).
		Int("agents", len(ids)).
		Msg("🍳 Pipeline started")

	for pos, id := range ids {
		agent := sess.Agent(id)
		outcome := models.StepOutcome{Position: pos + 1, AgentID: id, AgentName: agent.Name}

		var err error
		if o, ok := overrides[id]; ok {
			if err = sess.ApplyOverride(id, o); err != nil {
				err = e.fail(ctx, sess, pos, *agent, "", time.Now(), err)
			}
		}

		var run *models.PipelineRun
		if err == nil {
			run, err = e.runStep(ctx, sess, pos, *agent, sess.ChainInput(pos, globalInput))
		}
		if err != nil {
			outcome.Status = models.StepFailed
			outcome.ErrorKind = models.KindOf(err)
			outcome.Error = err.Error()
			var se *models.StepError
			if errors.As(err, &se) {
				outcome.Notice = se.Notice
			}
			result.Steps = append(result.Steps, outcome)
			result.Halted = true
			result.Mana = sess.Gauge.Level()
			log.Warn().Str("session", sess.ID).Int("position", pos+1).Msg("Pipeline halted")
			return result, err
		}

		outcome.Status = models.StepSuccess
		outcome.RunID = run.ID
		result.Steps = append(result.Steps, outcome)
		result.Runs = append(result.Runs, *run)
	}

	result.Mana = sess.Gauge.Level()
	log.Info().Str("session", sess.ID).Int("steps", len(result.Steps)).Msg("✅ Pipeline completed")
	return result, nil
}

// runStep executes agent at 0-based position pos. The session lock is held.
func (e *Engine) runStep(ctx context.Context, sess *sessions.Session, pos int, agent models.AgentDefinition, input string) (*models.PipelineRun, error) {
	ctx, span := tracer.Start(ctx, "pipeline.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("studio.session", sess.ID),
		attribute.String("studio.agent.id", agent.ID),
		attribute.Int("studio.agent.position", pos+1),
		attribute.String("studio.provider", string(agent.Provider)),
		attribute.String("studio.model", agent.Model),
	)

	start := time.Now()
	if err := sess.Gauge.Check(e.cost); err != nil {
		return nil, e.fail(ctx, sess, pos, agent, input, start, err)
	}

	sess.SetStatus(agent.ID, models.StepRunning)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.exec.Execute(callCtx, agent, sess.Skill, input, sess.CredentialsCopy())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
			err = fmt.Errorf("%w: %v", models.ErrTimeout, err)
		}
		return nil, e.fail(ctx, sess, pos, agent, input, start, err)
	}

	if err := sess.Gauge.Consume(e.cost); err != nil {
		return nil, e.fail(ctx, sess, pos, agent, input, start, err)
	}
	run := sess.AppendRun(models.PipelineRun{
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		Provider:     agent.Provider,
		Model:        agent.Model,
		Input:        input,
		Output:       resp.Content,
		EditedOutput: resp.Content,
	})
	sess.SetStatus(agent.ID, models.StepSuccess)
	sess.Touch()

	dur := time.Since(start)
	sess.Log.Write(models.LogEntry{
		Level:      models.LogInfo,
		Position:   pos + 1,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		Provider:   agent.Provider,
		Model:      agent.Model,
		Message:    fmt.Sprintf("Agent %d (%s) completed", pos+1, agent.Name),
		DurationMs: dur.Milliseconds(),
		Mana:       sess.Gauge.Level(),
	})
	e.recordTrace(ctx, sess.ID, pos, agent, models.StepSuccess, start, len(input), len(resp.Content), resp.Usage.TotalTokens, nil)
	span.SetAttributes(attribute.Int64("studio.tokens", resp.Usage.TotalTokens))

	log.Info().
		Str("session", sess.ID).
		Str("agent", agent.ID).
		Str("provider", string(agent.Provider)).
		Dur("duration", dur).
		Int("mana", sess.Gauge.Level()).
		Msg("✅ Step completed")
	return run, nil
}

// fail converts err into a StepError and records it everywhere a success
// would have been recorded. The gauge is never touched.
func (e *Engine) fail(ctx context.Context, sess *sessions.Session, pos int, agent models.AgentDefinition, input string, start time.Time, err error) error {
	kind := models.KindOf(err)
	stepErr := &models.StepError{
		Position:  pos + 1,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Kind:      kind,
		Err:       err,
	}
	if kind == models.KindPolicyRefusal {
		stepErr.Notice = guardrails.Notice(agent.Provider)
	}

	if sess.Agents.Index(agent.ID) >= 0 {
		sess.SetStatus(agent.ID, models.StepFailed)
	}
	sess.Touch()

	msg := stepErr.Error()
	if stepErr.Notice != "" {
		msg = agent.Name + ": " + stepErr.Notice
	}
	sess.Log.Write(models.LogEntry{
		Level:      models.LogError,
		Position:   pos + 1,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		Provider:   agent.Provider,
		Model:      agent.Model,
		Kind:       kind,
		Message:    msg,
		DurationMs: time.Since(start).Milliseconds(),
		Mana:       sess.Gauge.Level(),
	})
	e.recordTrace(ctx, sess.ID, pos, agent, models.StepFailed, start, len(input), 0, 0, stepErr)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	log.Error().
		Err(err).
		Str("session", sess.ID).
		Str("agent", agent.ID).
		Str("kind", string(kind)).
		Int("position", pos+1).
		Msg("❌ Step failed")
	return stepErr
}

// recordTrace writes one journal entry. Journal failures are logged only.
func (e *Engine) recordTrace(ctx context.Context, sessionID string, pos int, agent models.AgentDefinition, status models.StepStatus, start time.Time, inChars, outChars int, tokens int64, stepErr *models.StepError) {
	if e.journal == nil {
		return
	}
	t := &models.Trace{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		Position:    pos + 1,
		Status:      status,
		Provider:    agent.Provider,
		Model:       agent.Model,
		DurationMs:  time.Since(start).Milliseconds(),
		InputChars:  inChars,
		OutputChars: outChars,
		TotalTokens: tokens,
		CreatedAt:   time.Now().UTC(),
	}
	if stepErr != nil {
		t.ErrorKind = stepErr.Kind
		t.ErrorMessage = stepErr.Err.Error()
	}
	// Journal writes outlive a cancelled request.
	if err := e.journal.CreateTrace(context.WithoutCancel(ctx), t); err != nil {
		log.Error().Err(err).Str("agent", agent.ID).Msg("Failed to persist trace")
	}
}

func copyRun(run *models.PipelineRun) *models.PipelineRun {
	if run == nil {
		return nil
	}
	c := *run
	return &c
}
