// ABOUTME: Thread-safe registry for skills with idempotent registration.
// ABOUTME: Enforces permission, input, device, and timeout policy on execution.

package skill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidSchema indicates a skill reported a schema without a name or
// version after initialization.
var ErrInvalidSchema = errors.New("skill schema missing name or version")

// ErrSkillNotFound indicates the named skill is not registered.
var ErrSkillNotFound = errors.New("skill not found")

// EventPublisher is the narrow bus contract the registry needs. A stopped
// bus drops publishes, so the registry can publish unconditionally.
type EventPublisher interface {
	Publish(topic string, payload map[string]any, source, correlationID string)
}

// PermissionSource resolves the permission grants for a user. The registry
// checks a skill's declared permissions as a subset of the caller's grants.
type PermissionSource interface {
	PermissionsFor(userID string) []string
}

// StaticPermissions is a fixed user -> grants table satisfying
// PermissionSource. Grants under the "*" key apply to every user.
type StaticPermissions map[string][]string

// PermissionsFor returns the grants for userID merged with the baseline
// grants under "*", nil if neither is present.
func (p StaticPermissions) PermissionsFor(userID string) []string {
	baseline := p["*"]
	user := p[userID]
	if len(baseline) == 0 {
		return user
	}
	merged := make([]string, 0, len(baseline)+len(user))
	merged = append(merged, baseline...)
	merged = append(merged, user...)
	return merged
}

// entry holds a registered skill and its runtime state.
type entry struct {
	skill   Skill
	schema  Schema
	enabled bool
}

// Registry owns all registered skills. Registration and lookup are guarded
// by one mutex so the duplicate check and insert are atomic; concurrent
// registration of the same built-in set during startup yields exactly one
// entry per (name, version).
type Registry struct {
	mu         sync.RWMutex
	skills     map[string]*entry   // by name
	byCategory map[string][]string // category -> names
	bus        EventPublisher
	perms      PermissionSource
	offline    atomic.Bool
	logger     *slog.Logger
}

// NewRegistry creates a Registry. bus and perms may be nil: a nil bus skips
// event publication, a nil perms source means no user holds any grant.
func NewRegistry(bus EventPublisher, perms PermissionSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills:     make(map[string]*entry),
		byCategory: make(map[string][]string),
		bus:        bus,
		perms:      perms,
		logger:     logger.With("component", "registry"),
	}
}

// Register initializes and stores a skill. Re-registering an identical
// (name, version) pair is a no-op returning nil. A different version under
// an existing name replaces it after cleaning up the old skill.
func (r *Registry) Register(ctx context.Context, s Skill) error {
	// Initialize outside the lock: the schema is only valid afterwards,
	// and initialization may do real work (network, disk).
	if err := s.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing skill: %w", err)
	}
	schema := s.Schema()
	if schema.Name == "" || schema.Version == "" {
		return ErrInvalidSchema
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.skills[schema.Name]; ok {
		if existing.schema.Version == schema.Version {
			// Idempotent: same (name, version) already present.
			return nil
		}
		r.removeLocked(schema.Name)
		if err := existing.skill.Cleanup(ctx); err != nil {
			r.logger.Warn("cleanup of replaced skill failed",
				"skill", schema.Name, "error", err)
		}
	}

	r.skills[schema.Name] = &entry{skill: s, schema: schema, enabled: true}
	r.byCategory[schema.Category] = append(r.byCategory[schema.Category], schema.Name)

	r.logger.Info("skill registered",
		"skill", schema.Name,
		"version", schema.Version,
		"category", schema.Category)
	r.publish("skill.registered", map[string]any{
		"skill":    schema.Name,
		"version":  schema.Version,
		"category": schema.Category,
	}, "")
	return nil
}

// Unregister cleans up and removes a skill. Returns ErrSkillNotFound if the
// name is unknown.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.skills[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	r.removeLocked(name)
	r.mu.Unlock()

	if err := e.skill.Cleanup(ctx); err != nil {
		r.logger.Warn("skill cleanup failed", "skill", name, "error", err)
	}

	r.logger.Info("skill unregistered", "skill", name)
	r.publish("skill.unregistered", map[string]any{"skill": name}, "")
	return nil
}

// removeLocked deletes all indexes for name. Caller holds r.mu.
func (r *Registry) removeLocked(name string) {
	e := r.skills[name]
	delete(r.skills, name)
	names := r.byCategory[e.schema.Category]
	for i, n := range names {
		if n == name {
			r.byCategory[e.schema.Category] = append(names[:i], names[i+1:]...)
			break
		}
	}
	if len(r.byCategory[e.schema.Category]) == 0 {
		delete(r.byCategory, e.schema.Category)
	}
}

// SetOnline records whether the runtime has network connectivity. Skills
// whose schema declares RequiresOnline fail execution while offline. The
// registry starts online.
func (r *Registry) SetOnline(online bool) {
	r.offline.Store(!online)
}

// SetEnabled toggles a skill without unregistering it. Disabled skills fail
// execution with a typed result.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.skills[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	e.enabled = enabled
	return nil
}

// Schema returns the schema for a registered skill.
func (r *Registry) Schema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.skills[name]
	if !ok {
		return Schema{}, false
	}
	return e.schema, true
}

// ListSkills returns schemas, optionally filtered by category and by device
// compatibility. Empty filters match everything.
func (r *Registry) ListSkills(category, deviceType string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Schema
	for _, e := range r.skills {
		if category != "" && e.schema.Category != category {
			continue
		}
		if deviceType != "" && !e.schema.SupportsDevice(deviceType) {
			continue
		}
		out = append(out, e.schema)
	}
	return out
}

// Execute runs a skill by name under the full policy gate: existence,
// enablement, permissions, input contract, device compatibility, then the
// skill body under a hard timeout. It never returns an error or panics;
// every failure is a Result with Success=false. Both success and failure
// results are published as skill.result events.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, inv *Invocation) *Result {
	if inv == nil {
		inv = &Invocation{}
	}

	// Snapshot under the read lock so later mutation cannot race execution.
	r.mu.RLock()
	e, ok := r.skills[name]
	var snap entry
	if ok {
		snap = *e
	}
	r.mu.RUnlock()

	start := time.Now()
	res := r.gate(&snap, ok, name, params, inv)
	if res == nil {
		res = r.run(ctx, &snap, params, inv)
	}
	res.ExecutionTime = time.Since(start)

	r.publish("skill.result", map[string]any{
		"skill":             name,
		"success":           res.Success,
		"error":             res.ErrorMessage,
		"execution_time_ms": res.ExecutionTime.Milliseconds(),
		"user_id":           inv.UserID,
	}, inv.SessionID)
	return res
}

// gate applies the fail-fast checks. A nil return means all checks passed.
func (r *Registry) gate(e *entry, found bool, name string, params map[string]any, inv *Invocation) *Result {
	if !found {
		return Failure(fmt.Sprintf("Skill '%s' not found", name))
	}
	if !e.enabled {
		return Failure(fmt.Sprintf("Skill '%s' is disabled", name))
	}
	if e.schema.RequiresOnline && r.offline.Load() {
		return Failure(fmt.Sprintf("Skill '%s' requires network connectivity", e.schema.Name))
	}
	if msg := r.checkPermissions(&e.schema, inv.UserID); msg != "" {
		return Failure(msg)
	}
	if msg := validateInput(&e.schema, params); msg != "" {
		return Failure(msg)
	}
	if inv.DeviceType != "" && !e.schema.SupportsDevice(inv.DeviceType) {
		return Failure(fmt.Sprintf("Skill '%s' does not support device type '%s'", e.schema.Name, inv.DeviceType))
	}
	return nil
}

// checkPermissions verifies the skill's declared permissions are a subset
// of the caller's grants. Returns an error message, or "" when allowed.
func (r *Registry) checkPermissions(schema *Schema, userID string) string {
	if len(schema.Permissions) == 0 {
		return ""
	}
	var grants []string
	if r.perms != nil {
		grants = r.perms.PermissionsFor(userID)
	}
	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[g] = true
	}
	var missing []string
	for _, p := range schema.Permissions {
		if !granted[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("Missing permissions: %s", strings.Join(missing, ", "))
	}
	return ""
}

// validateInput checks params against the schema's input contract. An empty
// contract accepts anything. Returns an error message, or "" when valid.
func validateInput(schema *Schema, params map[string]any) string {
	if len(schema.InputContract) == 0 {
		return ""
	}
	if params == nil {
		params = map[string]any{}
	}
	doc, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("Invalid input: %v", err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema.InputContract),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Sprintf("Invalid input: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Sprintf("Invalid input: %s", strings.Join(msgs, "; "))
	}
	return ""
}

// run executes the skill body under the schema timeout, converting panics,
// errors, and deadline overruns into failed results. The skill's execution
// scope is cancelled on timeout; the caller gets the timeout result within
// the deadline plus scheduling slack.
func (r *Registry) run(ctx context.Context, e *entry, params map[string]any, inv *Invocation) *Result {
	timeout := e.schema.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("skill panicked: %v", rec)}
			}
		}()
		res, err := e.skill.Execute(execCtx, params, inv)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			r.logger.Warn("skill execution failed",
				"skill", e.schema.Name, "error", out.err)
			return Failure(fmt.Sprintf("Skill '%s' failed: %v", e.schema.Name, out.err))
		}
		if out.res == nil {
			return Failure(fmt.Sprintf("Skill '%s' returned no result", e.schema.Name))
		}
		return out.res
	case <-execCtx.Done():
		// The merged context also fires when the caller cancels; only an
		// elapsed deadline is a timeout.
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("skill execution timed out",
				"skill", e.schema.Name, "timeout", timeout)
			return Failure(fmt.Sprintf("Skill '%s' timed out after %s", e.schema.Name, timeout))
		}
		r.logger.Warn("skill execution cancelled", "skill", e.schema.Name)
		return Failure(fmt.Sprintf("Skill '%s' was cancelled", e.schema.Name))
	}
}

// publish sends a bus event if a bus is wired.
func (r *Registry) publish(topic string, payload map[string]any, correlationID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(topic, payload, "registry", correlationID)
}
