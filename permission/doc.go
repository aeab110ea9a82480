// Package permission maps account roles to 64-bit permission masks.
//
// A [Registry] assigns each permission name a stable bit; a [RoleManager]
// composes those bits per [domain.Role]. When the registry reserves the root
// bit, a mask holding it passes every check.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import the engine, jwt, or httpapi.
package permission
