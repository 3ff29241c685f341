// Package outcome publishes a journal record for every finished transaction
// submission so downstream consumers can reconcile trading activity without
// access to the bot itself.
package outcome
