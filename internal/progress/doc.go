// Package progress renders the observable steps of an in-flight AI
// execution (tool calls, reasoning, partial text) as outbound chat messages.
//
// Three rendering policies exist, chosen once at process startup:
//
//   - single: one status message edited per event, deleted on completion
//   - multi: one persistent message per tool, edited to its outcome
//   - blocks: multi plus thinking previews and intermediate text
//
// Sinks are per-execution objects. The dispatcher creates one, calls Start,
// bridges session hook events into it, and calls Close on every exit path.
// All rendering is best-effort: a failed platform call never aborts the
// execution being observed. Within one execution, adapter calls happen
// sequentially in event order — ordering is a correctness property, not an
// aesthetic one.
package progress
