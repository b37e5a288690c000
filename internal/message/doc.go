// Package message defines the platform-neutral message model and the
// conversation key every other package routes by.
//
// A conversation key is "{platform}-{channel}" for top-level channel
// traffic and "{platform}-{channel}-{thread}" inside a thread, so a
// thread is always a separate conversation from its parent channel.
package message
