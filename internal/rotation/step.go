package rotation

import (
	"fmt"
)

// Step is one phase of the Secrets Manager rotation protocol
type Step string

const (
	// StepCreate mints a new token and stores it as the AWSPENDING version
	StepCreate Step = "createSecret"
	// StepSet would push the pending value into a downstream service. The
	// secret is the token itself, so there is nothing to set.
	StepSet Step = "setSecret"
	// StepTest validates the pending token with the identity provider
	StepTest Step = "testSecret"
	// StepFinish moves AWSCURRENT to the pending version
	StepFinish Step = "finishSecret"
)

// Steps lists the protocol steps in execution order
var Steps = []Step{StepCreate, StepSet, StepTest, StepFinish}

// Valid reports whether s is one of the four protocol steps
func (s Step) Valid() bool {
	switch s {
	case StepCreate, StepSet, StepTest, StepFinish:
		return true
	default:
		return false
	}
}

func (s Step) String() string {
	return string(s)
}

// ParseStep parses step text
func ParseStep(text string) (Step, error) {
	s := Step(text)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStep, text)
	}
	return s, nil
}
