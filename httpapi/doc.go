// Package httpapi exposes the engine over HTTP with gin.
//
// Login endpoints answer with a signed JWT from package jwt. Rejections carry
// the engine's reason string in the "error" field and map to 401, 403, 423 or
// 429; rate limited and locked responses also set Retry-After. Store outages
// answer 503.
//
// Routes under /auth/2fa require GDPR consent on the presented token, and
// /admin requires the ADMIN role.
package httpapi
