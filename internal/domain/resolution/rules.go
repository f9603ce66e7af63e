package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/regatta/etl/internal/domain/shared"
)

var requiredRuleKeys = []string{
	"entity_type",
	"source_system",
	"version",
	"thresholds",
	"feature_weights",
	"hard_blocks",
	"source_precedence",
	"survivorship_rules",
	"missing_attribute_penalties",
}

// Thresholds route a computed score to a resolution state. Ordering is
// enforced at load time: hold <= review <= auto_promote, all in [0, 1].
type Thresholds struct {
	AutoPromote decimal.Decimal
	Review      decimal.Decimal
	Hold        decimal.Decimal
}

// RuleSet is a parsed, validated scoring rule set loaded from a YAML file.
type RuleSet struct {
	EntityType                Kind
	SourceSystem              string
	Version                   string
	YAMLHash                  string
	Thresholds                Thresholds
	FeatureWeights            map[string]decimal.Decimal
	HardBlocks                []string
	SourcePrecedence          []string
	SurvivorshipRules         map[string]string
	MissingAttributePenalties map[string]decimal.Decimal
	RawYAML                   string

	featureOrder []string
	penaltyOrder []string
}

type ruleFile struct {
	EntityType                string             `yaml:"entity_type"`
	SourceSystem              string             `yaml:"source_system"`
	Version                   string             `yaml:"version"`
	Thresholds                map[string]float64 `yaml:"thresholds"`
	FeatureWeights            map[string]float64 `yaml:"feature_weights"`
	HardBlocks                []string           `yaml:"hard_blocks"`
	SourcePrecedence          []string           `yaml:"source_precedence"`
	SurvivorshipRules         map[string]string  `yaml:"survivorship_rules"`
	MissingAttributePenalties map[string]float64 `yaml:"missing_attribute_penalties"`
}

func ruleSetError(format string, args ...any) error {
	return shared.NewDomainError("RULE_SET_INVALID", fmt.Sprintf(format, args...))
}

// LoadRuleSet reads, validates, and returns the rule set at path.
func LoadRuleSet(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return ParseRuleSet(raw)
}

// ParseRuleSet validates raw YAML rule content and builds a RuleSet.
// The content hash keys rule-set registration, so byte-identical files
// always resolve to the same registered rule set.
func ParseRuleSet(raw []byte) (*RuleSet, error) {
	var keys map[string]any
	if err := yaml.Unmarshal(raw, &keys); err != nil {
		return nil, ruleSetError("invalid YAML: %v", err)
	}
	if keys == nil {
		return nil, ruleSetError("YAML root must be a mapping")
	}
	var missing []string
	for _, k := range requiredRuleKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, ruleSetError("missing required YAML keys: %v", missing)
	}

	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, ruleSetError("invalid YAML: %v", err)
	}

	kind, err := ParseKind(f.EntityType)
	if err != nil {
		return nil, ruleSetError("invalid entity_type %q", f.EntityType)
	}

	for _, key := range []string{"auto_promote", "review", "hold"} {
		v, ok := f.Thresholds[key]
		if !ok {
			return nil, ruleSetError("missing threshold key %q", key)
		}
		if v < 0 || v > 1 {
			return nil, ruleSetError("threshold %q value %v must be in [0.0, 1.0]", key, v)
		}
	}
	if f.Thresholds["hold"] > f.Thresholds["review"] {
		return nil, ruleSetError("'hold' threshold (%v) must be <= 'review' (%v)",
			f.Thresholds["hold"], f.Thresholds["review"])
	}
	if f.Thresholds["review"] > f.Thresholds["auto_promote"] {
		return nil, ruleSetError("'review' threshold (%v) must be <= 'auto_promote' (%v)",
			f.Thresholds["review"], f.Thresholds["auto_promote"])
	}

	if len(f.FeatureWeights) == 0 {
		return nil, ruleSetError("'feature_weights' must not be empty")
	}
	weights := make(map[string]decimal.Decimal, len(f.FeatureWeights))
	featureOrder := make([]string, 0, len(f.FeatureWeights))
	for feat, w := range f.FeatureWeights {
		if w < 0 {
			return nil, ruleSetError("feature_weight %q value %v must be >= 0", feat, w)
		}
		weights[feat] = decimal.NewFromFloat(w)
		featureOrder = append(featureOrder, feat)
	}
	sort.Strings(featureOrder)

	penalties := make(map[string]decimal.Decimal, len(f.MissingAttributePenalties))
	penaltyOrder := make([]string, 0, len(f.MissingAttributePenalties))
	for k, v := range f.MissingAttributePenalties {
		penalties[k] = decimal.NewFromFloat(v)
		penaltyOrder = append(penaltyOrder, k)
	}
	sort.Strings(penaltyOrder)

	sum := sha256.Sum256(raw)
	return &RuleSet{
		EntityType:   kind,
		SourceSystem: f.SourceSystem,
		Version:      f.Version,
		YAMLHash:     hex.EncodeToString(sum[:]),
		Thresholds: Thresholds{
			AutoPromote: decimal.NewFromFloat(f.Thresholds["auto_promote"]),
			Review:      decimal.NewFromFloat(f.Thresholds["review"]),
			Hold:        decimal.NewFromFloat(f.Thresholds["hold"]),
		},
		FeatureWeights:            weights,
		HardBlocks:                f.HardBlocks,
		SourcePrecedence:          f.SourcePrecedence,
		SurvivorshipRules:         f.SurvivorshipRules,
		MissingAttributePenalties: penalties,
		RawYAML:                   string(raw),
		featureOrder:              featureOrder,
		penaltyOrder:              penaltyOrder,
	}, nil
}

// FeatureNames returns the weighted feature names in deterministic order.
func (rs *RuleSet) FeatureNames() []string {
	return rs.featureOrder
}

// IsHardBlock reports whether flag names a configured hard block.
func (rs *RuleSet) IsHardBlock(flag string) bool {
	for _, b := range rs.HardBlocks {
		if b == flag {
			return true
		}
	}
	return false
}

// StateForScore routes a pre-computed score through the thresholds.
func (rs *RuleSet) StateForScore(score decimal.Decimal) State {
	switch {
	case score.GreaterThanOrEqual(rs.Thresholds.AutoPromote):
		return StateAutoPromote
	case score.GreaterThanOrEqual(rs.Thresholds.Review):
		return StateReview
	case score.GreaterThanOrEqual(rs.Thresholds.Hold):
		return StateHold
	default:
		return StateReject
	}
}
