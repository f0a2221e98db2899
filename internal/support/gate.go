package support

import "github.com/hyunwoo-p/counseldesk/internal/ai"

const DefaultConfidenceThreshold = 0.75

// Gate decides, once, at draft-creation time whether a draft needs a
// human sign-off before it can reach the customer.
type Gate struct {
	threshold float64
}

func NewGate(threshold float64) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &Gate{threshold: threshold}
}

func (g *Gate) Threshold() float64 { return g.threshold }

// RequiresApproval is the entry rule. Only customer-facing reply drafts
// can gate delivery; they do when confidence is unknown or below the
// threshold. Internal-only notes (summary/emotion/intent) never block
// anything.
func (g *Gate) RequiresApproval(kind ai.Kind, confidence *float64) bool {
	if kind != ai.KindReply {
		return false
	}
	if confidence == nil {
		return true
	}
	return *confidence < g.threshold
}

// ValidAction reports whether the action names a terminal decision.
func ValidAction(action DecisionAction) bool {
	switch action {
	case ActionApproved, ActionModified, ActionRejected:
		return true
	}
	return false
}

func terminalStatus(action DecisionAction) ResponseStatus {
	switch action {
	case ActionApproved:
		return ResponseApproved
	case ActionModified:
		return ResponseModified
	default:
		return ResponseRejected
	}
}
