package agent

import "strings"

// KeywordScorer estimates how well a query matches an agent's specialty by
// counting keyword hits. Scores are deterministic and cheap, which keeps
// CanHandle safe to call on every query for every agent.
type KeywordScorer struct {
	keywords []string
	perHit   float64 // score added per matched keyword; 0 means proportional mode
	cap      float64
}

// NewProportionalScorer scores matched/total keywords, capped at cap.
// cap <= 0 defaults to 0.8 so keyword evidence alone never reaches certainty.
func NewProportionalScorer(keywords []string, cap float64) *KeywordScorer {
	if cap <= 0 {
		cap = 0.8
	}
	return &KeywordScorer{keywords: lowered(keywords), cap: cap}
}

// NewAdditiveScorer scores perHit for every matched keyword, capped at cap.
func NewAdditiveScorer(keywords []string, perHit, cap float64) *KeywordScorer {
	return &KeywordScorer{keywords: lowered(keywords), perHit: perHit, cap: cap}
}

// Score returns the match score for query, always in [0, cap].
// Empty queries score exactly 0.
func (s *KeywordScorer) Score(query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(s.keywords) == 0 {
		return 0.0
	}

	matched := 0
	for _, kw := range s.keywords {
		if strings.Contains(q, kw) {
			matched++
		}
	}

	var score float64
	if s.perHit > 0 {
		score = float64(matched) * s.perHit
	} else {
		score = float64(matched) / float64(len(s.keywords))
	}
	if score > s.cap {
		score = s.cap
	}
	return score
}

func lowered(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(kw)
	}
	return out
}
