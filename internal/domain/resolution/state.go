package resolution

import "fmt"

// State is the resolution disposition assigned to a candidate by the
// scoring engine or a manual decision.
type State string

const (
	StateAutoPromote State = "auto_promote"
	StateReview      State = "review"
	StateHold        State = "hold"
	StateReject      State = "reject"
)

// ParseState validates a resolution state value.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateAutoPromote, StateReview, StateHold, StateReject:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown resolution state %q", s)
}

func (s State) String() string { return string(s) }

// DecisionAction is a manual-review decision applied from a decision sheet.
type DecisionAction string

const (
	ActionPromote DecisionAction = "promote"
	ActionReject  DecisionAction = "reject"
	ActionHold    DecisionAction = "hold"
	ActionMerge   DecisionAction = "merge"
	ActionDemote  DecisionAction = "demote"
	ActionUnlink  DecisionAction = "unlink"
	ActionSplit   DecisionAction = "split"
)

// ParseDecisionAction validates the op column of a decision sheet.
func ParseDecisionAction(s string) (DecisionAction, error) {
	switch DecisionAction(s) {
	case ActionPromote, ActionReject, ActionHold, ActionMerge, ActionDemote, ActionUnlink, ActionSplit:
		return DecisionAction(s), nil
	}
	return "", fmt.Errorf("unknown decision action %q", s)
}
