package policy

import "errors"

var (
	// ErrUnknownPolicy is returned for a policy ID the manager has no record of.
	ErrUnknownPolicy = errors.New("policy: unknown policy")
	// ErrNotGranted is returned for re-encryption requests against a policy which was never granted.
	ErrNotGranted = errors.New("policy: policy was not granted")
	// ErrInvalidTransition is returned when an operation does not apply to the policy's current state.
	ErrInvalidTransition = errors.New("policy: invalid state transition")
)
