package policy

import "fmt"

// State is the lifecycle stage of a Policy.
//
//	Draft → Arranging → Granted → Active → {Expired, Revoked}
//	            ↘ Failed
//
// Active and Expired are never stored, they are derived from Granted and the
// policy's validity window.
type State int32

const (
	Draft State = iota
	Arranging
	Granted
	Active
	Expired
	Revoked
	Failed
)

var stateNames = map[State]string{
	Draft:     "draft",
	Arranging: "arranging",
	Granted:   "granted",
	Active:    "active",
	Expired:   "expired",
	Revoked:   "revoked",
	Failed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal returns true for states a policy never leaves.
func (s State) Terminal() bool {
	return s == Expired || s == Revoked || s == Failed
}

// ArrangementStatus is the outcome of offering a KFrag to a node.
type ArrangementStatus int32

const (
	Pending ArrangementStatus = iota
	Accepted
	Declined
	Unreachable
	Voided
)

var statusNames = map[ArrangementStatus]string{
	Pending:     "pending",
	Accepted:    "accepted",
	Declined:    "declined",
	Unreachable: "unreachable",
	Voided:      "voided",
}

func (s ArrangementStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ArrangementStatus(%d)", int32(s))
}
