// Package scoring computes confidence scores and routing states for
// candidates from the active rule set plus the source-trust policy. Scoring
// output always carries structured reasons; a score without reasons is
// invalid.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/trust"
)

// Input is everything needed to score one candidate deterministically.
type Input struct {
	EntityType    models.EntityType
	Attrs         map[string]any
	IsPromoted    bool
	Rules         models.RuleDocument
	Policy        models.TrustPolicy
	SourceSystems []string
}

// Result is the scoring outcome for one candidate.
type Result struct {
	BaseScore       float64
	Adjustment      float64
	FinalScore      float64
	State           models.ResolutionState
	Reasons         []string
	HardBlocked     bool
	TrustCapped     bool
	MissingFeatures []string
}

// Compute scores a single candidate. Pure: identical input always yields the
// identical score, state, and reasons.
func Compute(in Input) Result {
	res := Result{}

	// Hard blocks short-circuit everything, including the trust layer.
	for _, tag := range in.Rules.HardBlocks {
		if hasHardBlock(in.Attrs, tag) {
			res.HardBlocked = true
			res.BaseScore = 0
			res.FinalScore = 0
			res.State = models.ResolutionStateReject
			res.Reasons = []string{"hard_block:" + tag}
			return res
		}
	}

	base := 0.0
	features := sortedKeys(in.Rules.FeatureWeights)
	for _, feature := range features {
		weight := in.Rules.FeatureWeights[feature]
		if attrPresent(in.Attrs, feature) {
			base += weight
			res.Reasons = append(res.Reasons, fmt.Sprintf("feature:%s:%.4f", feature, weight))
		} else {
			res.MissingFeatures = append(res.MissingFeatures, feature)
		}
	}

	penaltyKeys := sortedKeys(in.Rules.MissingAttributePenalties)
	for _, key := range penaltyKeys {
		attr := strings.TrimPrefix(key, "missing_")
		if !attrPresent(in.Attrs, attr) {
			penalty := in.Rules.MissingAttributePenalties[key]
			base -= penalty
			res.Reasons = append(res.Reasons, fmt.Sprintf("penalty:%s:%.4f", key, penalty))
		}
	}

	res.BaseScore = round4(clamp01(base))

	signals := trust.ComputeSignals(&in.Policy, in.SourceSystems)
	adj, trustReasons := trust.Adjustment(&in.Policy, signals)
	res.Adjustment = adj
	res.Reasons = append(res.Reasons, trustReasons...)

	res.FinalScore = round4(clamp01(res.BaseScore + adj))
	res.State = route(res.FinalScore, in.Rules.Thresholds)

	if res.State == models.ResolutionStateAutoPromote {
		if capped, reason := trust.Gate(&in.Policy, signals); capped {
			res.State = models.ResolutionStateReview
			res.TrustCapped = true
			res.Reasons = append(res.Reasons, reason)
		}
	}

	// An already-promoted candidate is never routed below auto_promote by an
	// ordinary re-scoring pass. The transition guard enforces this again on
	// write.
	if in.IsPromoted {
		res.State = models.ResolutionStateAutoPromote
	}

	return res
}

func route(score float64, t models.Thresholds) models.ResolutionState {
	switch {
	case score >= t.AutoPromote:
		return models.ResolutionStateAutoPromote
	case score >= t.Review:
		return models.ResolutionStateReview
	case score >= t.Hold:
		return models.ResolutionStateHold
	default:
		return models.ResolutionStateReject
	}
}

// attrPresent reports whether the candidate carries a usable value for the
// attribute.
func attrPresent(attrs map[string]any, name string) bool {
	v, ok := attrs[name]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// hasHardBlock reports whether the candidate carries the given hard-block
// tag, recorded by the link builder under the "hard_blocks" attribute.
func hasHardBlock(attrs map[string]any, tag string) bool {
	raw, ok := attrs["hard_blocks"]
	if !ok || raw == nil {
		return false
	}
	switch list := raw.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && s == tag {
				return true
			}
		}
	case []string:
		for _, s := range list {
			if s == tag {
				return true
			}
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
