// Package aggregates contains infrastructure implementations of domain aggregate contracts.
//
// Implementations in this package compose the stores from internal/data/repos
// and own the conditional-write discipline for invariant-critical operations:
// one optimistic compare-and-set per logical write, fast-fail in-flight gating
// per user, and audited reset of corrupt state on the read path.
package aggregates
