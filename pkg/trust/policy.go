// Package trust implements the source-trust layer: a policy adjusting
// candidate confidence based on which sources, and how many distinct ones,
// support it.
package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/reed/pkg/models"
)

// LoadedPolicy pairs a parsed trust policy with its content hash.
type LoadedPolicy struct {
	Policy   models.TrustPolicy
	YamlHash string
}

// LoadFile reads, parses, and validates the trust policy document.
func LoadFile(path string) (*LoadedPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust policy %s: %w", path, err)
	}

	policy, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid trust policy %s: %w", path, err)
	}

	hash := sha256.Sum256(raw)
	return &LoadedPolicy{
		Policy:   *policy,
		YamlHash: hex.EncodeToString(hash[:]),
	}, nil
}

// Parse unmarshals and validates a trust policy document.
func Parse(raw []byte) (*models.TrustPolicy, error) {
	var policy models.TrustPolicy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}

	if err := validator.New().Struct(&policy); err != nil {
		return nil, err
	}

	return &policy, nil
}

// Signals summarize the linked-source evidence behind one candidate.
type Signals struct {
	DistinctSourceCount int
	HasHighTrustSource  bool
	MaxSourceWeight     float64
}

// ComputeSignals derives trust signals from the distinct source systems
// linked to a candidate.
func ComputeSignals(policy *models.TrustPolicy, sourceSystems []string) Signals {
	distinct := make(map[string]bool, len(sourceSystems))
	signals := Signals{}
	for _, system := range sourceSystems {
		if system == "" || distinct[system] {
			continue
		}
		distinct[system] = true
		weight := policy.SourceWeight(system)
		if weight > signals.MaxSourceWeight {
			signals.MaxSourceWeight = weight
		}
		if weight >= policy.HighTrustThreshold {
			signals.HasHighTrustSource = true
		}
	}
	signals.DistinctSourceCount = len(distinct)
	return signals
}

// Adjustment computes the score delta for the given signals, clamped to
// +/- MaxTotalAdjustmentAbs. Each effect is returned as a tagged reason.
func Adjustment(policy *models.TrustPolicy, signals Signals) (float64, []string) {
	adj := 0.0
	var reasons []string

	if signals.DistinctSourceCount == 1 && policy.SingleSourcePenalty > 0 {
		adj -= policy.SingleSourcePenalty
		reasons = append(reasons, fmt.Sprintf("trust:single_source:-%.4f", policy.SingleSourcePenalty))
	}
	if signals.DistinctSourceCount >= 2 && policy.MultiSourceBonus > 0 {
		adj += policy.MultiSourceBonus
		reasons = append(reasons, fmt.Sprintf("trust:multi_source:+%.4f", policy.MultiSourceBonus))
	}
	if !signals.HasHighTrustSource && policy.NoHighTrustPenalty > 0 {
		adj -= policy.NoHighTrustPenalty
		reasons = append(reasons, fmt.Sprintf("trust:no_high_trust:-%.4f", policy.NoHighTrustPenalty))
	}

	if adj > policy.MaxTotalAdjustmentAbs {
		reasons = append(reasons, fmt.Sprintf("trust:clamped:%.4f", policy.MaxTotalAdjustmentAbs))
		adj = policy.MaxTotalAdjustmentAbs
	} else if adj < -policy.MaxTotalAdjustmentAbs {
		reasons = append(reasons, fmt.Sprintf("trust:clamped:-%.4f", policy.MaxTotalAdjustmentAbs))
		adj = -policy.MaxTotalAdjustmentAbs
	}

	return adj, reasons
}

// Gate reports whether auto_promote must be capped at review for these
// signals, with the gating reason.
func Gate(policy *models.TrustPolicy, signals Signals) (bool, string) {
	if policy.RequireHighTrustForAutoPromote && !signals.HasHighTrustSource {
		return true, "gate:require_high_trust"
	}
	if signals.DistinctSourceCount < policy.MinDistinctSourcesForAutoPromote {
		return true, fmt.Sprintf("gate:min_distinct_sources:%d<%d", signals.DistinctSourceCount, policy.MinDistinctSourcesForAutoPromote)
	}
	return false, ""
}
