// Package format cleans and converts outbound response text: whitespace
// normalization, markdown to Slack mrkdwn, markdown to Matrix HTML, and
// length truncation that never leaves a code fence open.
package format
