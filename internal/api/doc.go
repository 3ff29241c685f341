// Package api exposes the inbound HTTP surface of the bot: the Telegram
// webhook endpoint with secret-token verification and a health probe.
package api
