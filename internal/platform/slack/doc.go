// Package slack implements the Slack adapter over Socket Mode.
//
// Inbound events arrive on a websocket obtained from
// apps.connections.open; every envelope is acknowledged before handling
// so Slack stops redelivering it. Outbound operations use the Web API
// with the bot token. Channel messages are gated: the bot answers direct
// messages, mentions, and follow-ups in threads it already participates
// in. Approval prompts are Block Kit button pairs resolved through
// block_actions callbacks on the same socket.
package slack
