// Package session persists the per-user wallet mapping that survives across
// conversations and process restarts. It offers memory, MySQL and Redis
// backed stores behind a single Store interface; all stores hold private
// material in encrypted form only.
package session
