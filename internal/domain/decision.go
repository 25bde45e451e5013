package domain

import "time"

// SelectionDecision records why the selector picked (or refused to pick) an
// agent for a query. Decisions are audit records: they are kept in a bounded
// history and persisted by the audit store.
type SelectionDecision struct {
	Query          string             `json:"query"`
	SelectedAgent  string             `json:"selected_agent,omitempty"`
	Confidence     float64            `json:"confidence"`
	Reasoning      string             `json:"reasoning"`
	FallbackUsed   bool               `json:"fallback_used"`
	AllScores      map[string]float64 `json:"all_scores"`
	SelectionTime  time.Duration      `json:"selection_time"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Summary flattens the decision into the shape reported in orchestration
// results.
func (d *SelectionDecision) Summary() map[string]any {
	return map[string]any{
		"query":          d.Query,
		"selected_agent": d.SelectedAgent,
		"confidence":     d.Confidence,
		"reasoning":      d.Reasoning,
		"fallback_used":  d.FallbackUsed,
		"all_scores":     d.AllScores,
	}
}
