// Package matrix implements the Matrix adapter on mautrix.
//
// Inbound messages arrive through the client-server sync loop; history
// replayed on startup is skipped by timestamp. Outbound messages carry
// both a plain body and an HTML formatted body; edits use m.replace
// relations, deletes are redactions, reactions are m.annotation events
// redacted again on removal. Approvals are plain-reply prompts because
// Matrix has no interactive message elements.
package matrix
