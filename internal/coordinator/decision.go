package coordinator

import "github.com/jcmexdev/saga-orchestrator/internal/pkg/messaging"

// Action is a compensating command the orchestrator may issue.
type Action string

const (
	ActionShippingCancel Action = "SHIPPING_CANCEL"
	ActionOrderCancel    Action = "ORDER_CANCEL"
)

// CompensationSequence returns, in execution order, the compensations needed
// when the given forward stage fails. The forward order is
// order -> shipping -> payment; only stages that completed before the
// failing one are undone, most recent first.
func CompensationSequence(stage messaging.Stage) []Action {
	switch stage {
	case messaging.StageShipping:
		return []Action{ActionOrderCancel}
	case messaging.StagePayment:
		return []Action{ActionShippingCancel, ActionOrderCancel}
	default:
		return []Action{}
	}
}

// nextCompensation returns the action that follows done in the sequence
// for stage, or false when done was the last one.
func nextCompensation(stage messaging.Stage, done Action) (Action, bool) {
	seq := CompensationSequence(stage)
	for i, a := range seq {
		if a == done && i+1 < len(seq) {
			return seq[i+1], true
		}
	}
	return "", false
}
