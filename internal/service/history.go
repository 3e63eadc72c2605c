package service

import (
	"fmt"
	"strings"

	"github.com/talentboard/supportbot/internal/domain"
)

const (
	historySummaryTurns  = 2
	historyVerbatimTurns = 3
	historyMaxTurnChars  = 220
	ellipsis             = "..."
)

type indexedTurn struct {
	domain.Turn
	index int
}

// CondenseHistory bounds a conversation to at most one summary note of the
// earliest turns plus the latest turns verbatim. Turns between the two are
// dropped.
func CondenseHistory(history []domain.Turn) []domain.Turn {
	normalized := make([]indexedTurn, 0, len(history))
	for i, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		normalized = append(normalized, indexedTurn{
			Turn:  domain.Turn{Role: turn.Role, Content: content},
			index: i,
		})
	}

	if len(normalized) == 0 {
		return []domain.Turn{}
	}

	latestFrom := len(normalized) - historyVerbatimTurns
	if latestFrom < 0 {
		latestFrom = 0
	}
	earlier := normalized[:latestFrom]
	if len(earlier) > historySummaryTurns {
		earlier = earlier[:historySummaryTurns]
	}

	out := make([]domain.Turn, 0, 1+historyVerbatimTurns)
	if len(earlier) > 0 {
		out = append(out, domain.Turn{Role: domain.RoleSystem, Content: summarizeTurns(earlier)})
	}
	for _, t := range normalized[latestFrom:] {
		role := domain.RoleAssistant
		if t.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		out = append(out, domain.Turn{Role: role, Content: t.Content})
	}
	return out
}

func summarizeTurns(turns []indexedTurn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "Assistant"
		if t.Role == domain.RoleUser {
			speaker = "User"
		}
		parts = append(parts, fmt.Sprintf("%s message %d: %s", speaker, t.index+1, compressText(t.Content, historyMaxTurnChars)))
	}
	return fmt.Sprintf("Early conversation summary (first %d messages): %s", len(turns), strings.Join(parts, " | "))
}

// compressText flattens newlines and truncates to maxChars runes, marking
// truncation with an ellipsis.
func compressText(s string, maxChars int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars-len(ellipsis)]) + ellipsis
}
