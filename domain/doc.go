// Package domain holds the persisted entities of the auth core and the
// persistence contract ([Store]) every backend implements.
//
// # Architecture boundaries
//
// Entities here carry no behavior beyond small predicates. Backends
// (internal/stores for Redis, sqlstore for SQL via gorm) translate between these
// types and their own row or hash layouts.
//
// # What this package must NOT do
//
//   - Import any other blogauth package.
//   - Hash, sign, or otherwise process secrets.
package domain
