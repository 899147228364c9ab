package registry

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/reviewstudio/studio/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultVersion is used when the document carries no version.
const DefaultVersion = "1.0"

// Defaults is the merge table for optional agent fields.
var Defaults = models.AgentDefinition{
	Description: "",
	Provider:    models.ProviderOpenAI,
	Model:       "gpt-4o-mini",
	Temperature: 0.2,
	MaxTokens:   4000,
	UserPrompt:  "Analyze the provided content.",
}

// agentEntry mirrors AgentDefinition with every field optional so absent keys
// can be told apart from zero values.
type agentEntry struct {
	ID           *string    `yaml:"id"`
	Name         *string    `yaml:"name"`
	Description  *string    `yaml:"description"`
	Provider     *string    `yaml:"provider"`
	Model        *string    `yaml:"model"`
	Temperature  *float64   `yaml:"temperature"`
	MaxTokens    *yaml.Node `yaml:"max_tokens"`
	SystemPrompt *string    `yaml:"system_prompt"`
	UserPrompt   *string    `yaml:"user_prompt"`
}

// FieldError is one problem in one agent entry. Entry is 1-based.
type FieldError struct {
	Entry   int    `json:"entry"`
	AgentID string `json:"agent_id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	who := fmt.Sprintf("agents[%d]", f.Entry)
	if f.AgentID != "" {
		who += fmt.Sprintf(" (%s)", f.AgentID)
	}
	return fmt.Sprintf("%s.%s: %s", who, f.Field, f.Message)
}

// ValidationError reports why a configuration document was rejected.
type ValidationError struct {
	Problems []FieldError
	Cause    error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", models.ErrConfigValidation, e.Cause)
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%v: %s", models.ErrConfigValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return models.ErrConfigValidation }

// LoadAndStandardize parses a YAML agent configuration. The document may be a
// mapping {version, agents} or a bare list of agents. Missing version becomes
// "1.0", missing agents an empty list, non-mapping entries are dropped and
// optional fields take their defaults.
func LoadAndStandardize(raw string) (*models.AgentsConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &ValidationError{Cause: fmt.Errorf("parse yaml: %w", err)}
	}

	cfg := &models.AgentsConfig{Version: DefaultVersion, Agents: []models.AgentDefinition{}}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = resolveAlias(doc.Content[0])
	}

	var list *yaml.Node
	switch {
	case root == nil || isNull(root):
		return cfg, nil
	case root.Kind == yaml.SequenceNode:
		list = root
	case root.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i].Value, resolveAlias(root.Content[i+1])
			switch key {
			case "version":
				if !isNull(val) {
					if val.Kind != yaml.ScalarNode {
						return nil, &ValidationError{Cause: fmt.Errorf("version must be a scalar (line %d)", val.Line)}
					}
					cfg.Version = val.Value
				}
			case "agents":
				list = val
			}
		}
	default:
		return nil, &ValidationError{Cause: fmt.Errorf("document must be a mapping or a list (line %d)", root.Line)}
	}

	if list == nil || isNull(list) {
		return cfg, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, &ValidationError{Cause: fmt.Errorf("agents must be a list (line %d)", list.Line)}
	}

	var problems []FieldError
	seen := make(map[string]int)
	for i, item := range list.Content {
		item = resolveAlias(item)
		if item.Kind != yaml.MappingNode {
			continue
		}
		entry := i + 1

		var e agentEntry
		if err := item.Decode(&e); err != nil {
			problems = append(problems, FieldError{Entry: entry, Field: "*", Message: err.Error()})
			continue
		}
		def, errs := merge(e, entry)
		problems = append(problems, errs...)
		if len(errs) > 0 {
			continue
		}
		if first, dup := seen[def.ID]; dup {
			problems = append(problems, FieldError{
				Entry: entry, AgentID: def.ID, Field: "id",
				Message: fmt.Sprintf("duplicate id (first used by agents[%d])", first),
			})
			continue
		}
		seen[def.ID] = entry
		cfg.Agents = append(cfg.Agents, def)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

// merge fills defaults and checks constraints for one entry.
func merge(e agentEntry, entry int) (models.AgentDefinition, []FieldError) {
	def := Defaults
	var problems []FieldError
	id := ""
	if e.ID != nil {
		id = strings.TrimSpace(*e.ID)
	}
	fail := func(field, msg string) {
		problems = append(problems, FieldError{Entry: entry, AgentID: id, Field: field, Message: msg})
	}

	if e.ID == nil {
		fail("id", "field required")
	} else if id == "" {
		fail("id", "must not be blank")
	}
	if e.Name == nil {
		fail("name", "field required")
	}
	if e.SystemPrompt == nil {
		fail("system_prompt", "field required")
	}

	def.ID = id
	if e.Name != nil {
		def.Name = *e.Name
	}
	if e.SystemPrompt != nil {
		def.SystemPrompt = *e.SystemPrompt
	}
	if e.Description != nil {
		def.Description = *e.Description
	}
	if e.Provider != nil {
		def.Provider = models.ProviderKind(strings.ToLower(strings.TrimSpace(*e.Provider)))
	}
	if e.Model != nil {
		def.Model = *e.Model
	}
	if e.Temperature != nil {
		def.Temperature = *e.Temperature
	}
	maxTokensOK := true
	if e.MaxTokens != nil && !isNull(resolveAlias(e.MaxTokens)) {
		n, err := wholeNumber(resolveAlias(e.MaxTokens))
		if err != nil {
			fail("max_tokens", err.Error())
			maxTokensOK = false
		}
		def.MaxTokens = n
	}
	if e.UserPrompt != nil {
		def.UserPrompt = *e.UserPrompt
	}

	if !def.Provider.Valid() {
		fail("provider", fmt.Sprintf("unknown provider %q", def.Provider))
	}
	if !(def.Temperature >= 0 && def.Temperature <= 1) {
		fail("temperature", fmt.Sprintf("%v outside [0,1]", def.Temperature))
	}
	if maxTokensOK && def.MaxTokens <= 0 {
		fail("max_tokens", "must be positive")
	}
	return def, problems
}

// wholeNumber reads an integer scalar. A float with no fractional part
// (4000.0) is accepted; anything else is rejected rather than truncated.
func wholeNumber(n *yaml.Node) (int, error) {
	if n.Kind == yaml.ScalarNode {
		switch n.ShortTag() {
		case "!!int":
			var v int
			if err := n.Decode(&v); err == nil {
				return v, nil
			}
		case "!!float":
			var f float64
			if err := n.Decode(&f); err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
				return int(f), nil
			}
		}
	}
	return 0, fmt.Errorf("must be an integer, got %q", n.Value)
}

// Dump renders a configuration as YAML with fields in declared order.
func Dump(cfg *models.AgentsConfig) (string, error) {
	out := cfg
	if out == nil {
		out = &models.AgentsConfig{}
	}
	if out.Version == "" || out.Agents == nil {
		cp := *out
		if cp.Version == "" {
			cp.Version = DefaultVersion
		}
		if cp.Agents == nil {
			cp.Agents = []models.AgentDefinition{}
		}
		out = &cp
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("encode agents yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode agents yaml: %w", err)
	}
	return buf.String(), nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
