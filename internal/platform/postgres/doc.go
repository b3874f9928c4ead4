// Package postgres provides PostgreSQL implementations of the store
// interfaces.
//
// Courses are stored as a row per course with the outline as a JSONB
// document; lesson and block status writes are transactional
// read-modify-writes of that document under a row lock. The task queue
// is a plain table drained with FOR UPDATE SKIP LOCKED, with a partial
// unique index enforcing at most one active task per target.
package postgres
