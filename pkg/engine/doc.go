// Package engine builds the per-family dump/restore command lines
// (PostgreSQL, MySQL, MongoDB, Redis) run through an executor.Executor, and
// dials each family directly for ListDatabases. See DESIGN.md for the
// field-masking strategy subset this package accepts.
package engine
