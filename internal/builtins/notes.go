// ABOUTME: Notes skill remembers, recalls, and forgets user facts.
// ABOUTME: Facts are namespaced per user and held in memory.

package builtins

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/2389/aide-runtime/internal/skill"
)

// Notes stores small per-user facts ("my wifi password is hunter2") and
// serves them back on request. Facts live in memory for the lifetime of
// the skill.
type Notes struct {
	mu    sync.RWMutex
	facts map[string]map[string]string // user ID -> key -> value
}

// NewNotes creates the notes skill.
func NewNotes() *Notes {
	return &Notes{facts: make(map[string]map[string]string)}
}

func (n *Notes) Initialize(ctx context.Context) error { return nil }

func (n *Notes) Cleanup(ctx context.Context) error {
	n.mu.Lock()
	n.facts = make(map[string]map[string]string)
	n.mu.Unlock()
	return nil
}

func (n *Notes) Schema() skill.Schema {
	return skill.Schema{
		Name:        "notes",
		Version:     "1.0.0",
		Description: "Remembers, recalls, and forgets personal facts",
		Category:    "memory",
		InputContract: json.RawMessage(`{
			"type": "object",
			"properties": {
				"intent": {"type": "string"},
				"key": {"type": "string"},
				"value": {"type": "string"}
			},
			"required": ["intent"]
		}`),
		Permissions:      []string{"notes"},
		Timeout:          2 * time.Second,
		SupportedDevices: []string{skill.DeviceAll},
	}
}

func (n *Notes) Execute(ctx context.Context, params map[string]any, inv *skill.Invocation) (*skill.Result, error) {
	intent, _ := params["intent"].(string)
	key := normalizeKey(params["key"])
	value, _ := params["value"].(string)

	if key == "" {
		return skill.Failure("I need to know which fact you mean."), nil
	}

	var message string
	switch intent {
	case "note.save":
		if value == "" {
			return skill.Failure("I need a value to remember."), nil
		}
		n.mu.Lock()
		if n.facts[inv.UserID] == nil {
			n.facts[inv.UserID] = make(map[string]string)
		}
		n.facts[inv.UserID][key] = value
		n.mu.Unlock()
		message = "Got it, I'll remember your " + key + "."

	case "note.recall":
		n.mu.RLock()
		stored, ok := n.facts[inv.UserID][key]
		n.mu.RUnlock()
		if ok {
			message = "Your " + key + " is " + stored + "."
		} else {
			message = "I don't have anything saved for your " + key + "."
		}

	case "note.delete":
		n.mu.Lock()
		delete(n.facts[inv.UserID], key)
		n.mu.Unlock()
		message = "Okay, I've forgotten your " + key + "."

	default:
		return skill.Failure("I'm not sure what to do with that note."), nil
	}

	return &skill.Result{
		Success: true,
		Data:    map[string]any{"message": message},
	}, nil
}

// normalizeKey lowercases and trims a fact key so "WiFi Password" and
// "wifi password" address the same fact.
func normalizeKey(raw any) string {
	key, _ := raw.(string)
	return strings.ToLower(strings.TrimSpace(key))
}
