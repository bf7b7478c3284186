package runtime

import (
	"github.com/clwillingham/legion/core"
)

// HumanBehavior routes turns addressed to a user participant out to the
// configured prompt and blocks the turn until the person answers.
type HumanBehavior struct {
	participant core.Participant
	prompt      PromptFunc
}

// NewHumanBehavior builds the prompting behavior for one user participant.
func NewHumanBehavior(p core.Participant, prompt PromptFunc) *HumanBehavior {
	return &HumanBehavior{participant: p, prompt: prompt}
}

// HandleMessage implements core.Behavior.
func (b *HumanBehavior) HandleMessage(rc *core.RunContext, message string) (string, error) {
	return b.prompt(rc, b.participant.ID, message)
}
