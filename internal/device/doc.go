// Package device maps device identity to capability profiles and adapts
// response text for the target device. Profiles are a static table loaded at
// process start; adaptation is a deterministic content transform over the
// already-generated response, never a regeneration.
package device
