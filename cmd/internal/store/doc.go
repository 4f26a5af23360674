// Package store provides the persistence implementations behind the chat
// repository boundary: an in-memory store used for tests and database-less
// dev runs, and a PostgreSQL store built on pgx.
//
// Both implement chat.Manager: Run supplies one atomic unit of work whose
// effects commit together or not at all.
package store
