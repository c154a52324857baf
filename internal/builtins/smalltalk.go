// ABOUTME: Smalltalk skill handles greetings, thanks, and farewells.
// ABOUTME: Stateless canned responses keyed by intent.

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/aide-runtime/internal/skill"
)

// Smalltalk serves social pleasantries so the flow layer always has a
// skill to dispatch greeting-class intents to.
type Smalltalk struct{}

// NewSmalltalk creates the smalltalk skill.
func NewSmalltalk() *Smalltalk {
	return &Smalltalk{}
}

func (s *Smalltalk) Initialize(ctx context.Context) error { return nil }

func (s *Smalltalk) Cleanup(ctx context.Context) error { return nil }

func (s *Smalltalk) Schema() skill.Schema {
	return skill.Schema{
		Name:        "smalltalk",
		Version:     "1.0.0",
		Description: "Responds to greetings, thanks, and goodbyes",
		Category:    "social",
		InputContract: json.RawMessage(`{
			"type": "object",
			"properties": {
				"intent": {"type": "string"}
			}
		}`),
		Timeout:          time.Second,
		SupportedDevices: []string{skill.DeviceAll},
	}
}

var smalltalkResponses = map[string]string{
	"greeting": "Hi there! What can I do for you?",
	"thanks":   "You're welcome!",
	"farewell": "Goodbye! Talk to you soon.",
}

func (s *Smalltalk) Execute(ctx context.Context, params map[string]any, inv *skill.Invocation) (*skill.Result, error) {
	intent, _ := params["intent"].(string)
	message, ok := smalltalkResponses[intent]
	if !ok {
		message = "I'm here if you need anything."
	}

	return &skill.Result{
		Success: true,
		Data:    map[string]any{"message": message},
	}, nil
}
