// Package reqvalidate validates the inbound request envelope at the HTTP
// boundary, before a Transaction is ever created (spec.md §3: "a request
// violating [the message-count bound] is rejected at the boundary with a
// client error, not a core concern but enforced before the core sees the
// request").
//
// Uses github.com/go-playground/validator/v10 (an indirect teacher
// dependency promoted to direct here) for struct-tag validation, replacing
// the teacher's own unfinished pkg/schema/validator.go — see DESIGN.md.
package reqvalidate

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/luthien-gate/policyproxy/pkg/proxyerr"
)

// MaxMessages is the implementation constant spec.md §3 names: "Maximum
// message count per request is bounded (implementation constant,
// currently 1000)".
const MaxMessages = 1000

// Envelope is the minimal shape validated at the boundary, independent of
// wire format: spec.md §3's invariants apply identically to an OpenAI or
// an Anthropic request once normalized far enough to count messages.
type Envelope struct {
	Model        string `validate:"required"`
	MessageCount int    `validate:"min=1,max=1000"`
}

var instance = validator.New(validator.WithRequiredStructEnabled())

// Validate checks model and messageCount against spec.md §3's Request
// invariants and returns a *proxyerr.Error of kind ValidationError on
// failure.
func Validate(model string, messageCount int) error {
	env := Envelope{Model: model, MessageCount: messageCount}

	if err := instance.Struct(env); err != nil {
		return proxyerr.Wrap(proxyerr.KindValidation, describe(model, messageCount), err)
	}
	return nil
}

func describe(model string, messageCount int) string {
	switch {
	case model == "":
		return "request.model must not be empty"
	case messageCount == 0:
		return "request.messages must not be empty"
	case messageCount > MaxMessages:
		return fmt.Sprintf("request.messages has %d entries, exceeding the %d-message bound", messageCount, MaxMessages)
	default:
		return "request failed validation"
	}
}
