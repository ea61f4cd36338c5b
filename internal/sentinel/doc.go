// Package sentinel provides an immutable error type for sentinel error
// declarations.
//
// Sentinel errors declared with errors.New are variables and can be
// reassigned by mistake. Error is a string-backed error type that can be
// declared as a const, so sentinel values are truly immutable while still
// working with errors.Is through wrapped error chains.
package sentinel
