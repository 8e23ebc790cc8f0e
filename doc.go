// Package serverhub is a schema-driven server inventory store.
//
// # Overview
//
// ServerHub keeps every server, VM and network object of an estate in one
// queryable inventory. Objects carry typed attributes governed by a
// per-servertype schema, and every change is recorded in an append-only
// audit journal.
//
// The system consists of three main components:
//   - API Server: REST API for querying and committing inventory changes
//   - Dataset Engine: typed casting, validation and optimistic concurrency
//   - Storage Layer: SQLite-backed object store with embedded migrations
//
// # Core Features
//
// Typed attribute schema:
//   - string, number, boolean, ip, network, relation and datetime values
//   - Multi-valued attributes with stable ordering
//   - Per-servertype constraints: required, default, pattern
//   - Computed attributes (reverse_relation, supernet, domain) resolved
//     at query time, never stored
//
// Dataset API:
//   - Expression filters: exact, any, regexp, range, not, and, or
//   - Restricted projections and server-side ordering
//   - Optimistic concurrency with old-value checks on commit
//   - Segment derivation from configured IP ranges
//
// Change journal:
//   - Every create, update and delete recorded as a commit
//   - Full object snapshots on add and delete
//   - Deleted objects restorable from their delete record
//
// # Usage
//
// Start the API server:
//
//	serverhub server --config configs/config.yaml
//
// Load a schema definition:
//
//	serverhub schema load schema.yaml
//
// Query the inventory from the shell:
//
//	serverhub query --filters '{"servertype":"vm","state":"online"}'
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (configs/config.yaml)
//   - Environment variables (SH_ prefix)
//   - .env file
//
// Example configuration:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8095
//	database:
//	  path: ./serverhub.db
//	  busy_timeout: 5000
//	security:
//	  rate_limit: 100
//
// # API Endpoints
//
// Dataset:
//   - POST /api/v1/dataset/query   - Query objects with filters
//   - POST /api/v1/dataset/commit  - Commit attribute changes and deletions
//   - POST /api/v1/dataset/create  - Create a new object
//
// Change journal:
//   - GET  /api/v1/changes             - List commits (paginated)
//   - GET  /api/v1/changes/:id         - Get one commit
//   - POST /api/v1/changes/:id/restore - Restore a deleted object
//
// Schema:
//   - GET /api/v1/schema/servertypes - List servertypes with constraints
//   - GET /api/v1/schema/attributes  - List attribute definitions
package serverhub
