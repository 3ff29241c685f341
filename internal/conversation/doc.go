// Package conversation implements the per-user wizard state machine: a
// closed set of operations, each with a fixed ordered step table, collecting
// one field per inbound turn. Cancellation is available at every step, and a
// user can run at most one operation at a time while distinct users proceed
// independently.
package conversation
