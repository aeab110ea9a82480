// Package jwt turns a successful login's identity assertion into a signed
// session token and verifies it on later requests. The auth core never calls
// it; the HTTP adapter does.
package jwt
