// Package password owns credential secrets at rest: argon2id hashing in
// PHC string format, constant-time verification, and the registration
// password policy.
//
// Plaintext passwords never leave this package's call frames; only the
// encoded hash is stored. The policy is a set of independent predicates so
// registration can report every violated rule at once instead of the
// first one found.
package password
