// Package middleware holds gin guards for routes behind a session token.
//
//   - [RequireIdentity] verifies the bearer token and stores the
//     [blogauth.IdentityAssertion] on the gin context.
//   - [RequireRole], [RequirePermission] and [RequireConsent] read that
//     identity; mount them after RequireIdentity.
//
// Guards answer 401 for a missing or invalid token and 403 for a valid token
// that lacks the role, permission or consent. They never touch the store.
package middleware
