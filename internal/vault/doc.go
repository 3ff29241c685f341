// Package vault guards user signing keys. Keys and mnemonics are sealed with
// a process-wide secret before they reach any store, and are only decrypted
// on demand for the duration of a single transaction. A decryption with the
// wrong secret fails closed: callers observe the same invalid-credential
// error as for malformed input.
package vault
