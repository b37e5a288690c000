// Package workdir binds conversations to working directories and keeps
// every binding inside the configured allow-list roots.
//
// Containment is re-checked on every resolve, not just on bind: a
// directory deleted or a root removed from config after binding falls
// back to the first root instead of escaping it.
package workdir
