// Package repository defines the domain repository interfaces.
//
// The interfaces are business contracts, independent of the backing store
// (MongoDB, PostgreSQL, in-memory). Concrete adapters live under
// internal/store/.
//
// Conventions:
//   - Context is always the first parameter.
//   - TenantID is passed explicitly on methods that need it.
//   - Domain error sentinels live in errors.go.
package repository
