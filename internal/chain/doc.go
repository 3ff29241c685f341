// Package chain houses blockchain connectivity for the bot: an EVM RPC
// client for signed contract calls, receipt polling, log subscriptions and
// balance queries, plus the ABI fragments and unit-scaling helpers the
// trading operations rely on.
package chain
