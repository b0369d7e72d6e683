// Package telegram maintains the single authenticated session to the
// upstream content source. It exposes interactive two-step login, bot
// command delivery, conversation scanning, and payload download behind a
// narrow Client interface so the worker never touches the wire protocol.
package telegram
