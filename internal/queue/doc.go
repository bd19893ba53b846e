// Package queue persists subtitle tasks in SQLite and owns their lifecycle.
//
// The Store manages database connections, schema initialization, and every
// status transition: pending -> processing -> completed|failed, with
// pending|processing -> cancelled on request. Terminal states are final.
// Mutations of one task are serialized through a per-task lock and a
// read-modify-write transaction; readers always see a whole row.
//
// The database is treated as working storage for the service rather than a
// long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for task semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package queue
