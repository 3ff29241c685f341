// Package orchestrator turns a fully-collected conversation into a signed,
// broadcast and confirmed chain transaction. Operations whose result is only
// observable from an emitted event race a log subscription against a fixed
// timer; both the receipt and the matching log must arrive for the
// submission to count as confirmed.
package orchestrator
