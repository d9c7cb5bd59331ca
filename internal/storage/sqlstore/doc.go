// Package sqlstore persists user documents in a single SQL table, backed by
// MySQL in production or SQLite for single-node deployments and tests. Schema
// migrations are embedded from deploy/migrations and applied on open.
package sqlstore
