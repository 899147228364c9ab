package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
)

// Magic is a note-keeper preset.
type Magic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Instruction string `json:"-"`
	// Local presets run without a provider call and cost no mana.
	Local bool `json:"local"`
}

// MagicSystemPrompt is the system prompt shared by every generated preset.
const MagicSystemPrompt = "You are an expert regulatory assistant and technical editor. Return clean, structured Markdown. " +
	"Be conservative; do not fabricate. Mark missing info as Gap."

const (
	magicMaxTokens   = 6000
	magicTemperature = 0.2
)

// Magics lists the presets in display order.
var Magics = []Magic{
	{ID: "organize_note", Name: "Organize Note (Markdown)",
		Instruction: "Organize the following note into structured Markdown with headings, bullets, action items, gaps, and keywords:"},
	{ID: "executive_summary", Name: "Executive Summary",
		Instruction: "Create an executive summary (Markdown) with 3-7 key points:"},
	{ID: "action_items", Name: "Action Items + Owners",
		Instruction: "Extract action items. Output a Markdown table: Action, Owner (suggested), Due date (suggested), Rationale."},
	{ID: "risk_finder", Name: "Risk/Deficiency Finder",
		Instruction: "Identify regulatory risks/deficiencies with [High/Med/Low] severity and evidence quotes."},
	{ID: "compliance_checklist", Name: "Compliance Checklist Generator",
		Instruction: "Generate a compliance checklist (Markdown checkboxes) for common 510(k) topics."},
	{ID: "keyword_highlighter", Name: "AI Keywords Highlighter", Local: true},
}

// LookupMagic finds a preset by id or display name.
func LookupMagic(key string) (Magic, bool) {
	key = strings.TrimSpace(key)
	for _, m := range Magics {
		if m.ID == key || strings.EqualFold(m.Name, key) {
			return m, true
		}
	}
	return Magic{}, false
}

// RunMagic runs a preset over the session note and stores the result as the
// rendered note. Generated presets follow the same mana rules as steps.
func (e *Engine) RunMagic(ctx context.Context, sess *sessions.Session, req models.MagicRequest) (string, error) {
	m, ok := LookupMagic(req.Magic)
	if !ok {
		return "", &store.ErrNotFound{Entity: "magic", Key: req.Magic}
	}

	sess.Lock()
	defer sess.Unlock()

	if req.Note != "" {
		sess.Note = req.Note
	}
	if m.Local {
		sess.NoteRendered = e.hl.Render(sess.Note, req.Colors)
		sess.Touch()
		return sess.NoteRendered, nil
	}

	agent := models.AgentDefinition{
		ID:           "magic:" + m.ID,
		Name:         m.Name,
		Provider:     req.Provider,
		Model:        strings.TrimSpace(req.Model),
		Temperature:  magicTemperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: MagicSystemPrompt,
		UserPrompt:   m.Instruction,
	}
	if agent.MaxTokens <= 0 {
		agent.MaxTokens = magicMaxTokens
	}

	start := time.Now()
	switch {
	case !agent.Provider.Valid():
		return "", e.fail(ctx, sess, -1, agent, sess.Note, start,
			fmt.Errorf("%w: unknown provider %q", models.ErrConfigValidation, agent.Provider))
	case agent.Model == "":
		return "", e.fail(ctx, sess, -1, agent, sess.Note, start,
			fmt.Errorf("%w: model is required", models.ErrConfigValidation))
	}
	if err := sess.Gauge.Check(e.cost); err != nil {
		return "", e.fail(ctx, sess, -1, agent, sess.Note, start, err)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.exec.Generate(callCtx, &models.GenerateRequest{
		Provider:           agent.Provider,
		Model:              agent.Model,
		SystemPrompt:       agent.SystemPrompt,
		UserPrompt:         agent.UserPrompt + "\n\n" + sess.Note,
		MaxTokens:          agent.MaxTokens,
		Temperature:        agent.Temperature,
		SessionCredentials: sess.CredentialsCopy(),
	})
	if err != nil {
		return "", e.fail(ctx, sess, -1, agent, sess.Note, start, err)
	}
	if err := sess.Gauge.Consume(e.cost); err != nil {
		return "", e.fail(ctx, sess, -1, agent, sess.Note, start, err)
	}

	sess.NoteRendered = resp.Content
	sess.Touch()
	sess.Log.Write(models.LogEntry{
		Level:      models.LogInfo,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		Provider:   agent.Provider,
		Model:      agent.Model,
		Message:    m.Name + " completed",
		DurationMs: time.Since(start).Milliseconds(),
		Mana:       sess.Gauge.Level(),
	})
	e.recordTrace(ctx, sess.ID, -1, agent, models.StepSuccess, start, len(sess.Note), len(resp.Content), resp.Usage.TotalTokens, nil)

	log.Info().
		Str("session", sess.ID).
		Str("magic", m.ID).
		Str("provider", string(agent.Provider)).
		Msg("✨ Magic completed")
	return resp.Content, nil
}
