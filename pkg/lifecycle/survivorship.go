// Package lifecycle implements the canonical promotion, merge, split,
// demote, and unlink operations plus manual review decisions. Every
// operation is recorded as an idempotent, replay-safe action with per-item
// audit rows.
package lifecycle

import (
	"sort"
	"time"

	"github.com/Ramsey-B/reed/pkg/models"
)

// Contribution is one candidate's input to survivorship: its attributes,
// score, the source systems backing it, and when it was last observed.
type Contribution struct {
	CandidateID   string
	Attrs         map[string]any
	QualityScore  *float64
	SourceSystems []string
	UpdatedAt     time.Time
}

// AttributeDecision records which contribution won an attribute and by what
// method. It becomes an attribute provenance row.
type AttributeDecision struct {
	Attribute    string
	CandidateID  string
	SourceSystem *string
	Method       models.SurvivorshipMethod
}

// internal bookkeeping attributes that never survive onto a canonical
var nonCanonicalAttrs = map[string]bool{
	"hard_blocks": true,
}

// Resolve applies the rule document's survivorship policy across the
// contributions and returns the winning attribute values plus one decision
// per attribute. Ties break toward the most recently observed contribution.
func Resolve(doc models.RuleDocument, contributions []Contribution) (map[string]any, []AttributeDecision) {
	attrs := map[string]any{}
	decisions := []AttributeDecision{}
	if len(contributions) == 0 {
		return attrs, decisions
	}

	for _, name := range attributeNames(contributions) {
		if nonCanonicalAttrs[name] {
			continue
		}

		method, ok := doc.Survivorship[name]
		if !ok || !method.Valid() {
			method = models.SurvivorshipHighestPrecedenceNonNull
		}

		winner := pickWinner(doc, method, name, contributions)
		if winner == nil {
			continue
		}

		attrs[name] = winner.Attrs[name]
		decisions = append(decisions, AttributeDecision{
			Attribute:    name,
			CandidateID:  winner.CandidateID,
			SourceSystem: bestSource(doc, winner.SourceSystems),
			Method:       method,
		})
	}

	return attrs, decisions
}

func pickWinner(doc models.RuleDocument, method models.SurvivorshipMethod, attr string, contributions []Contribution) *Contribution {
	var winner *Contribution
	for i := range contributions {
		c := &contributions[i]
		if !hasValue(c.Attrs, attr) {
			continue
		}
		if winner == nil || beats(doc, method, attr, c, winner) {
			winner = c
		}
	}
	return winner
}

// beats reports whether challenger outranks incumbent for the attribute
// under the given method.
func beats(doc models.RuleDocument, method models.SurvivorshipMethod, attr string, challenger, incumbent *Contribution) bool {
	switch method {
	case models.SurvivorshipHighestScoreConfirmed:
		cs, is := scoreOf(challenger), scoreOf(incumbent)
		if cs != is {
			return cs > is
		}
	default:
		cr, ir := bestRank(doc, challenger.SourceSystems), bestRank(doc, incumbent.SourceSystems)
		if cr != ir {
			return cr < ir
		}
	}
	return challenger.UpdatedAt.After(incumbent.UpdatedAt)
}

func scoreOf(c *Contribution) float64 {
	if c.QualityScore == nil {
		return -1
	}
	return *c.QualityScore
}

// bestRank returns the highest precedence rank among the contribution's
// source systems. Lower is better; systems absent from the precedence list
// rank below every listed one.
func bestRank(doc models.RuleDocument, systems []string) int {
	best := len(doc.SourcePrecedence)
	for _, system := range systems {
		for rank, listed := range doc.SourcePrecedence {
			if listed == system && rank < best {
				best = rank
			}
		}
	}
	return best
}

func bestSource(doc models.RuleDocument, systems []string) *string {
	if len(systems) == 0 {
		return nil
	}
	best := systems[0]
	bestIdx := rankOf(doc, best)
	for _, system := range systems[1:] {
		if idx := rankOf(doc, system); idx < bestIdx {
			best, bestIdx = system, idx
		}
	}
	return &best
}

func rankOf(doc models.RuleDocument, system string) int {
	for rank, listed := range doc.SourcePrecedence {
		if listed == system {
			return rank
		}
	}
	return len(doc.SourcePrecedence)
}

func hasValue(attrs map[string]any, name string) bool {
	v, ok := attrs[name]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func attributeNames(contributions []Contribution) []string {
	seen := map[string]bool{}
	for _, c := range contributions {
		for name := range c.Attrs {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
