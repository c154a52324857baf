// Package skill defines the pluggable capability contract and the registry
// that owns registered skills.
//
// A Skill is a behavioral unit with a declared Schema (input contract,
// permissions, timeout, supported devices). The Registry is the only holder
// with mutation rights over registered skills: it initializes them on
// registration, enforces permission, input, and device checks on execution,
// and bounds every execution with the schema's timeout. Execute never
// returns an error to the caller; every failure mode becomes a typed Result
// with Success=false.
package skill
