// ABOUTME: Clock skill answers time and date questions.
// ABOUTME: Pure local computation, safe on every device type.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/aide-runtime/internal/skill"
)

// Clock answers "what time is it" and "what's the date" style questions.
type Clock struct {
	now func() time.Time
}

// NewClock creates the clock skill.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Initialize(ctx context.Context) error { return nil }

func (c *Clock) Cleanup(ctx context.Context) error { return nil }

func (c *Clock) Schema() skill.Schema {
	return skill.Schema{
		Name:        "clock",
		Version:     "1.0.0",
		Description: "Tells the current time and date",
		Category:    "utility",
		InputContract: json.RawMessage(`{
			"type": "object",
			"properties": {
				"intent": {"type": "string"}
			}
		}`),
		Timeout:          2 * time.Second,
		SupportedDevices: []string{skill.DeviceAll},
	}
}

func (c *Clock) Execute(ctx context.Context, params map[string]any, inv *skill.Invocation) (*skill.Result, error) {
	now := c.now()

	intent, _ := params["intent"].(string)
	var message string
	if intent == "date.query" {
		message = fmt.Sprintf("Today is %s.", now.Format("Monday, January 2"))
	} else {
		message = fmt.Sprintf("It's %s.", now.Format("3:04 PM"))
	}

	return &skill.Result{
		Success: true,
		Data:    map[string]any{"message": message},
	}, nil
}
