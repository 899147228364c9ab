package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/internal/workflow"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator answers by agent system prompt and records every request.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []*models.GenerateRequest
	replies map[string]string
	errs    map[string]error
	block   bool
}

func (g *fakeGenerator) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	for marker, err := range g.errs {
		if strings.Contains(req.SystemPrompt, marker) {
			return nil, err
		}
	}
	for marker, reply := range g.replies {
		if strings.Contains(req.SystemPrompt, marker) {
			return &models.GenerateResponse{Provider: req.Provider, Model: req.Model, Content: reply,
				Usage: models.TokenUsage{TotalTokens: 42}}, nil
		}
	}
	return &models.GenerateResponse{Provider: req.Provider, Model: req.Model, Content: "echo: " + req.UserPrompt}, nil
}

func (g *fakeGenerator) requests() []*models.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*models.GenerateRequest(nil), g.calls...)
}

func threeAgents() *models.AgentsConfig {
	mk := func(id string) models.AgentDefinition {
		return models.AgentDefinition{
			ID: id, Name: "Agent " + id, Provider: models.ProviderOpenAI, Model: "gpt-4o-mini",
			Temperature: 0.2, MaxTokens: 4000, SystemPrompt: "system-" + id, UserPrompt: "Analyze " + id + ".",
		}
	}
	return &models.AgentsConfig{Version: "1.0", Agents: []models.AgentDefinition{mk("a1"), mk("a2"), mk("a3")}}
}

func newSession() *sessions.Session {
	return sessions.New("sess-1", sessions.Defaults{Agents: threeAgents(), Skill: "SKILL", Mana: 100})
}

func newEngine(gen *fakeGenerator, journal store.TraceStore) *workflow.Engine {
	return workflow.NewEngine(gen, journal, workflow.Options{StepCost: 20})
}

func TestRunStep_Success(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"system-a1": "summary"}}
	journal := store.NewMemoryTraceStore(0)
	defer journal.Close()
	sess := newSession()

	run, err := newEngine(gen, journal).RunStep(context.Background(), sess, "a1", "the submission")
	require.NoError(t, err)

	assert.Equal(t, "summary", run.Output)
	assert.Equal(t, "summary", run.EditedOutput)
	assert.Equal(t, "the submission", run.Input)
	assert.Equal(t, 80, sess.Gauge.Level())
	assert.Equal(t, models.StepSuccess, sess.Status("a1"))
	assert.Len(t, sess.Runs, 1)

	reqs := gen.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "SKILL\n\nsystem-a1", reqs[0].SystemPrompt)
	assert.Equal(t, "Analyze a1.\n\n---\nINPUT:\nthe submission", reqs[0].UserPrompt)

	entries := sess.Log.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogInfo, entries[0].Level)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, 80, entries[0].Mana)

	traces, err := journal.ListTraces(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, models.StepSuccess, traces[0].Status)
	assert.Equal(t, int64(42), traces[0].TotalTokens)
}

func TestRunStep_InsufficientMana(t *testing.T) {
	gen := &fakeGenerator{}
	sess := newSession()
	sess.Gauge.Set(15)

	_, err := newEngine(gen, nil).RunStep(context.Background(), sess, "a1", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrResourceExhausted))
	assert.Equal(t, models.KindResourceExhausted, models.KindOf(err))

	assert.Equal(t, 15, sess.Gauge.Level())
	assert.Empty(t, gen.requests(), "no provider call is made")
	assert.Empty(t, sess.Runs)
	assert.Equal(t, models.StepFailed, sess.Status("a1"))
}

func TestRunStep_ProviderFailure(t *testing.T) {
	gen := &fakeGenerator{errs: map[string]error{"system-a2": fmt.Errorf("openai: %w: HTTP 429", models.ErrProviderCall)}}
	sess := newSession()

	_, err := newEngine(gen, nil).RunStep(context.Background(), sess, "a2", "x")
	var se *models.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Position)
	assert.Equal(t, "Agent a2", se.AgentName)
	assert.Equal(t, models.KindProviderCall, se.Kind)
	assert.Contains(t, err.Error(), "agent 2 (Agent a2) failed")

	assert.Equal(t, 100, sess.Gauge.Level())
	assert.Equal(t, models.StepFailed, sess.Status("a2"))
	entries := sess.Log.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogError, entries[0].Level)
	assert.Contains(t, entries[0].Message, "Agent a2")
}

func TestRunStep_RefusalCarriesNotice(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"system-a1": "I'm sorry, but I can't help with that."}}
	sess := newSession()

	_, err := newEngine(gen, nil).RunStep(context.Background(), sess, "a1", "x")
	var se *models.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.KindPolicyRefusal, se.Kind)
	assert.Contains(t, se.Notice, "different provider")
	assert.Equal(t, 100, sess.Gauge.Level())
	assert.Empty(t, sess.Runs)
}

func TestRunStep_UnknownAgent(t *testing.T) {
	_, err := newEngine(&fakeGenerator{}, nil).RunStep(context.Background(), newSession(), "zz", "x")
	var nf *store.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestRunStep_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	engine := workflow.NewEngine(gen, nil, workflow.Options{Timeout: 20 * time.Millisecond})

	_, err := engine.RunStep(context.Background(), newSession(), "a1", "x")
	assert.True(t, errors.Is(err, models.ErrTimeout))
	assert.Equal(t, models.KindTimeout, models.KindOf(err))
}

func TestRunFullPipeline_ChainsOutputs(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"system-a1": "A", "system-a2": "B2", "system-a3": "C"}}
	sess := newSession()

	res, err := newEngine(gen, nil).RunFullPipeline(context.Background(), sess, "GLOBAL", nil)
	require.NoError(t, err)
	assert.False(t, res.Halted)
	require.Len(t, res.Runs, 3)
	assert.Equal(t, 40, res.Mana)

	assert.Equal(t, "GLOBAL", res.Runs[0].Input)
	assert.Equal(t, "A", res.Runs[1].Input)
	assert.Equal(t, "B2", res.Runs[2].Input)
	for _, id := range []string{"a1", "a2", "a3"} {
		assert.Equal(t, models.StepSuccess, sess.Status(id))
	}
}

func TestRunFullPipeline_EditedOutputWins(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"system-a1": "A"}}
	engine := newEngine(gen, nil)
	sess := newSession()

	run, err := engine.RunStep(context.Background(), sess, "a1", "GLOBAL")
	require.NoError(t, err)
	sess.Lock()
	_, err = sess.EditRun(run.ID, "B")
	input := sess.ChainInput(1, "GLOBAL")
	sess.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "B", input)

	second, err := engine.RunStep(context.Background(), sess, "a2", input)
	require.NoError(t, err)
	assert.Equal(t, "B", second.Input)
}

func TestRunFullPipeline_HaltsOnFirstFailure(t *testing.T) {
	gen := &fakeGenerator{
		replies: map[string]string{"system-a1": "A"},
		errs:    map[string]error{"system-a2": fmt.Errorf("gemini: %w: quota", models.ErrProviderCall)},
	}
	sess := newSession()

	res, err := newEngine(gen, nil).RunFullPipeline(context.Background(), sess, "GLOBAL", nil)
	require.Error(t, err)
	assert.True(t, res.Halted)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, models.StepSuccess, res.Steps[0].Status)
	assert.Equal(t, models.StepFailed, res.Steps[1].Status)
	assert.Equal(t, models.KindProviderCall, res.Steps[1].ErrorKind)

	assert.Len(t, gen.requests(), 2, "step 3 never runs")
	assert.Equal(t, models.StepIdle, sess.Status("a3"))
	require.Len(t, sess.Runs, 1, "completed outputs are kept")
	assert.Equal(t, "A", sess.Runs[0].Output)
	assert.Equal(t, 80, sess.Gauge.Level())
}

func TestRunFullPipeline_StopsWhenManaRunsOut(t *testing.T) {
	gen := &fakeGenerator{}
	sess := newSession()
	sess.Gauge.Set(45)

	res, err := newEngine(gen, nil).RunFullPipeline(context.Background(), sess, "GLOBAL", nil)
	assert.True(t, errors.Is(err, models.ErrResourceExhausted))
	assert.Len(t, res.Runs, 2)
	assert.Equal(t, 5, sess.Gauge.Level())
	assert.Len(t, gen.requests(), 2)
}

func TestRunFullPipeline_OverridesPersist(t *testing.T) {
	gen := &fakeGenerator{}
	engine := newEngine(gen, nil)
	sess := newSession()

	provider := models.ProviderAnthropic
	model := "claude-3-5-haiku-latest"
	maxTokens := 1200
	_, err := engine.RunFullPipeline(context.Background(), sess, "GLOBAL", map[string]models.AgentOverride{
		"a2": {Provider: &provider, Model: &model, MaxTokens: &maxTokens},
	})
	require.NoError(t, err)

	reqs := gen.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, models.ProviderAnthropic, reqs[1].Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", reqs[1].Model)
	assert.Equal(t, 1200, reqs[1].MaxTokens)
	assert.Equal(t, models.ProviderOpenAI, reqs[0].Provider)

	// A later single step without overrides still uses the overridden agent.
	_, err = engine.RunStep(context.Background(), sess, "a2", "again")
	require.NoError(t, err)
	last := gen.requests()[3]
	assert.Equal(t, models.ProviderAnthropic, last.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", last.Model)
}

func TestRunFullPipeline_InvalidOverride(t *testing.T) {
	gen := &fakeGenerator{}
	sess := newSession()
	bad := models.ProviderKind("mistral")

	res, err := newEngine(gen, nil).RunFullPipeline(context.Background(), sess, "GLOBAL", map[string]models.AgentOverride{
		"a1": {Provider: &bad},
	})
	assert.True(t, errors.Is(err, models.ErrConfigValidation))
	assert.True(t, res.Halted)
	assert.Empty(t, gen.requests())
	assert.Equal(t, models.ProviderOpenAI, sess.Agent("a1").Provider)
}

func TestRunSingleStep_InputSourceAndOneOffOverride(t *testing.T) {
	gen := &fakeGenerator{}
	engine := newEngine(gen, nil)
	sess := newSession()
	sess.OCRText = "ocr text"
	sess.RawText = "raw text"

	maxTokens := 12000
	run, err := engine.RunSingleStep(context.Background(), sess, models.StepRequest{
		AgentID:  "a3",
		Source:   models.SourceLastOutput,
		Override: &models.AgentOverride{MaxTokens: &maxTokens},
	})
	require.NoError(t, err)
	assert.Equal(t, "ocr text", run.Input, "no runs yet falls back to OCR text")
	assert.Equal(t, 12000, gen.requests()[0].MaxTokens)
	assert.Equal(t, 4000, sess.Agent("a3").MaxTokens, "single-step overrides are not remembered")

	run, err = engine.RunSingleStep(context.Background(), sess, models.StepRequest{AgentID: "a1", Source: models.SourceLastOutput})
	require.NoError(t, err)
	assert.Equal(t, "echo: Analyze a3.\n\n---\nINPUT:\nocr text", run.Input)

	explicit := "typed input"
	run, err = engine.RunSingleStep(context.Background(), sess, models.StepRequest{AgentID: "a1", Input: &explicit, Source: models.SourceRawText})
	require.NoError(t, err)
	assert.Equal(t, "typed input", run.Input)
}

func TestRunMagic(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"technical editor": "## Summary"}}
	engine := newEngine(gen, nil)
	sess := newSession()

	out, err := engine.RunMagic(context.Background(), sess, models.MagicRequest{
		Magic: "executive_summary", Provider: models.ProviderGemini, Model: "gemini-2.5-flash", Note: "raw note",
	})
	require.NoError(t, err)
	assert.Equal(t, "## Summary", out)
	assert.Equal(t, "## Summary", sess.NoteRendered)
	assert.Equal(t, 80, sess.Gauge.Level())

	req := gen.requests()[0]
	assert.Equal(t, workflow.MagicSystemPrompt, req.SystemPrompt)
	assert.Equal(t, "Create an executive summary (Markdown) with 3-7 key points:\n\nraw note", req.UserPrompt)
	assert.Equal(t, 6000, req.MaxTokens)
}

func TestRunMagic_GatedByMana(t *testing.T) {
	gen := &fakeGenerator{}
	sess := newSession()
	sess.Gauge.Set(10)

	_, err := newEngine(gen, nil).RunMagic(context.Background(), sess, models.MagicRequest{
		Magic: "Risk/Deficiency Finder", Provider: models.ProviderOpenAI, Model: "gpt-4o-mini", Note: "n",
	})
	assert.True(t, errors.Is(err, models.ErrResourceExhausted))
	assert.Empty(t, gen.requests())
	assert.Equal(t, 10, sess.Gauge.Level())
}

func TestRunMagic_HighlighterIsLocal(t *testing.T) {
	gen := &fakeGenerator{}
	sess := newSession()
	sess.Gauge.Set(0)

	out, err := newEngine(gen, nil).RunMagic(context.Background(), sess, models.MagicRequest{
		Magic: "keyword_highlighter",
		Note:  "Recall of the predicate",
		Colors: []models.KeywordColor{{Keyword: "the", Color: "teal"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="coral"><b>Recall</b></span>`)
	assert.Contains(t, out, `<span style="color:teal; font-weight:900">the</span>`)
	assert.Empty(t, gen.requests())
}

func TestRunMagic_Unknown(t *testing.T) {
	_, err := newEngine(&fakeGenerator{}, nil).RunMagic(context.Background(), newSession(), models.MagicRequest{Magic: "poem"})
	var nf *store.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestConcurrentStepsOnOneSessionSerialise(t *testing.T) {
	gen := &fakeGenerator{}
	engine := newEngine(gen, nil)
	sess := newSession()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RunStep(context.Background(), sess, "a1", "x")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, exhausted int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrResourceExhausted):
			exhausted++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, exhausted)
	assert.Equal(t, 0, sess.Gauge.Level())
}
