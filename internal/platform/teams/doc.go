// Package teams implements the Microsoft Teams adapter on the Bot
// Framework protocol.
//
// Inbound activities arrive on the /api/messages webhook; every request
// carries a Bot Framework JWT that is validated (signature, audience,
// issuer) before the body is read. Outbound operations go to the
// serviceUrl each activity advertises, authenticated with a cached
// client-credentials token. Approvals are Adaptive Cards whose submit
// actions come back as message activities with a value payload. Teams
// has no bot reaction API, so reaction calls are logged no-ops.
package teams
