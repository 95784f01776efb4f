package moderation

import (
	"context"
	"strings"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
)

// KeywordModerator is the built-in ContentModerator: a term-list scorer used
// when no external moderation service is configured. Block terms abort the
// publish outright; review terms let the message through flagged for audit.
type KeywordModerator struct {
	blockTerms  []string
	reviewTerms []string
}

// NewKeywordModerator builds a moderator from raw term lists. Terms are
// matched case-insensitively as substrings of the normalized body.
func NewKeywordModerator(blockTerms, reviewTerms []string) *KeywordModerator {
	return &KeywordModerator{
		blockTerms:  lowerAll(blockTerms),
		reviewTerms: lowerAll(reviewTerms),
	}
}

func (m *KeywordModerator) Evaluate(ctx context.Context, body string, mctx ports.ModerationContext) (domain.ModerationDecision, error) {
	lowered := strings.ToLower(body)

	if signals := matches(lowered, m.blockTerms); len(signals) > 0 {
		return domain.ModerationDecision{
			Verdict:  domain.VerdictBlock,
			Severity: 1.0,
			Signals:  signals,
		}, nil
	}

	if signals := matches(lowered, m.reviewTerms); len(signals) > 0 {
		return domain.ModerationDecision{
			Verdict:  domain.VerdictReview,
			Severity: 0.5,
			Signals:  signals,
		}, nil
	}

	return domain.ModerationDecision{Verdict: domain.VerdictAllow}, nil
}

func matches(body string, terms []string) []string {
	var hit []string
	for _, term := range terms {
		if term != "" && strings.Contains(body, term) {
			hit = append(hit, term)
		}
	}
	return hit
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
