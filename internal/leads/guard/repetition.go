package guard

import (
	"fmt"
	"strings"
)

// Repetition detector parameters.
const (
	repetitionHistorySize = 5
	jaccardThreshold      = 0.7
	openerLength          = 50
)

// RepetitionVerdict is the repetition-detector output.
type RepetitionVerdict struct {
	Repetitive bool
	Reason     string
}

// CheckRepetition compares a candidate message against the most recent
// outbound messages (most recent first). Rules run in order and the first
// match wins: exact duplicate, high token overlap, recurring opener.
func CheckRepetition(candidate string, recentOutbound []string) RepetitionVerdict {
	history := recentOutbound
	if len(history) > repetitionHistorySize {
		history = history[:repetitionHistorySize]
	}

	trimmed := strings.TrimSpace(candidate)

	for i, prev := range history {
		if strings.TrimSpace(prev) == trimmed {
			return RepetitionVerdict{
				Repetitive: true,
				Reason:     fmt.Sprintf("identical to message sent %d message(s) ago", i+1),
			}
		}
	}

	candidateTokens := tokenSet(trimmed)
	for i, prev := range history {
		if sim := jaccard(candidateTokens, tokenSet(prev)); sim > jaccardThreshold {
			return RepetitionVerdict{
				Repetitive: true,
				Reason:     fmt.Sprintf("%.0f%% word overlap with message sent %d message(s) ago", sim*100, i+1),
			}
		}
	}

	// Formulaic openers repeat even when bodies differ.
	opener := prefix(trimmed, openerLength)
	if opener != "" {
		matches := 0
		for _, prev := range history {
			if prefix(strings.TrimSpace(prev), openerLength) == opener {
				matches++
			}
		}
		if matches > 1 {
			return RepetitionVerdict{
				Repetitive: true,
				Reason:     fmt.Sprintf("same opening used in %d of the last %d messages", matches, len(history)),
			}
		}
	}

	return RepetitionVerdict{}
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func prefix(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
