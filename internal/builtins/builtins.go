// ABOUTME: RegisterAll wires the built-in skills into a registry.
// ABOUTME: Registration order is alphabetical and not significant.

package builtins

import (
	"context"
	"fmt"

	"github.com/2389/aide-runtime/internal/skill"
)

// Registrar is the narrow registry contract builtins need.
type Registrar interface {
	Register(ctx context.Context, s skill.Skill) error
}

// RegisterAll registers the built-in skills. The first registration
// failure aborts and is returned.
func RegisterAll(ctx context.Context, reg Registrar) error {
	for _, s := range []skill.Skill{
		NewClock(),
		NewNotes(),
		NewSmalltalk(),
	} {
		if err := reg.Register(ctx, s); err != nil {
			return fmt.Errorf("registering %s: %w", s.Schema().Name, err)
		}
	}
	return nil
}
