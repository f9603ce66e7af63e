package resolution

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	scoreZero = decimal.Zero
	scoreOne  = decimal.NewFromInt(1)
)

// ScoreResult holds the scoring outcome for a single candidate.
type ScoreResult struct {
	Score   decimal.Decimal
	State   State
	Reasons []string
}

// HardBlocked reports whether the result was short-circuited by a hard
// block. Hard-blocked candidates never receive enrichment
// recommendations.
func (r ScoreResult) HardBlocked() bool {
	for _, reason := range r.Reasons {
		if strings.HasPrefix(reason, "hard_block:") {
			return true
		}
	}
	return false
}

// ComputeScore scores a candidate against the rule set.
//
// The score is the sum of feature weights for all present features,
// minus penalties for missing high-value attributes, clamped to
// [0, 1] and rounded half-even to four decimal places. Any hard-block
// flag matching a configured hard block short-circuits to score 0 and
// state reject.
func (rs *RuleSet) ComputeScore(features map[string]bool, hardBlockFlags []string) ScoreResult {
	var reasons []string

	for _, flag := range hardBlockFlags {
		if rs.IsHardBlock(flag) {
			reasons = append(reasons, "hard_block:"+flag)
			return ScoreResult{Score: scoreZero, State: StateReject, Reasons: reasons}
		}
	}

	score := scoreZero
	for _, feat := range rs.featureOrder {
		if features[feat] {
			weight := rs.FeatureWeights[feat]
			score = score.Add(weight)
			reasons = append(reasons, "feature:"+feat+":"+weight.StringFixed(4))
		}
	}

	for _, penaltyKey := range rs.penaltyOrder {
		attr := strings.TrimPrefix(penaltyKey, "missing_")
		hasAttr := false
		for feat := range rs.FeatureWeights {
			if strings.HasPrefix(feat, attr) && features[feat] {
				hasAttr = true
				break
			}
		}
		if !hasAttr {
			penalty := rs.MissingAttributePenalties[penaltyKey]
			score = decimal.Max(scoreZero, score.Sub(penalty))
			reasons = append(reasons, "penalty:"+penaltyKey+":"+penalty.StringFixed(4))
		}
	}

	score = decimal.Min(scoreOne, decimal.Max(scoreZero, score)).RoundBank(4)
	return ScoreResult{Score: score, State: rs.StateForScore(score), Reasons: reasons}
}
