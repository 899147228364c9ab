// Package guardrails recognises provider refusals and turns them into a
// reviewer-facing notice that suggests another provider.
//
// Refusals arrive two ways: as a classified provider error (blocked prompt,
// safety stop, content-policy status) or as a short reply whose text is an
// apology instead of an answer. Both end up as models.ErrPolicyRefusal.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/reviewstudio/studio/pkg/models"
)

// maxRefusalRunes bounds the replies inspected for refusal phrasing; a long
// answer that happens to open with an apology is still an answer.
const maxRefusalRunes = 400

var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(i'?m|i am)\s+(sorry|afraid)[,.]?\s+(but\s+)?i\s+(can(no|')?t|am\s+unable\s+to|won'?t)\b`),
	regexp.MustCompile(`(?i)^\s*i\s+(can(no|')?t|am\s+unable\s+to|won'?t)\s+(help|assist|comply|provide)\s+with\s+(that|this)\b`),
	regexp.MustCompile(`(?i)\b(violates?|against)\s+(my|our|the)\s+(usage|content|safety)\s+polic(y|ies)\b`),
}

// IsRefusal reports whether a successful reply is really a refusal.
func IsRefusal(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxRefusalRunes {
		return false
	}
	for _, re := range refusalPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// CheckOutput returns a policy-refusal error for refusal replies.
func CheckOutput(provider models.ProviderKind, output string) error {
	if IsRefusal(output) {
		return fmt.Errorf("%s: %w: %s", provider, models.ErrPolicyRefusal, strings.TrimSpace(output))
	}
	return nil
}

// Notice is the message shown instead of a raw refusal error.
func Notice(provider models.ProviderKind) string {
	alts := make([]string, 0, len(models.ProviderKinds)-1)
	for _, k := range models.ProviderKinds {
		if k != provider {
			alts = append(alts, string(k))
		}
	}
	return fmt.Sprintf(
		"The %s provider declined this request under its safety policy. "+
			"Review the input for sensitive content, or run this step again with a different provider (%s).",
		provider, strings.Join(alts, ", "))
}
