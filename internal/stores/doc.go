// Package stores implements domain.Store on Redis.
//
// # Layout
//
//	<prefix>:acct:<id>                 account hash
//	<prefix>:acct:email:<email>        email -> id index, claimed with SETNX
//	<prefix>:bc:<id>                   set of backup-code hashes
//	<prefix>:tok:<kind>:<hash>         token hash, expires with the token
//	<prefix>:tok:<kind>:email:<email>  set of live token hashes per email
//	<prefix>:att:log                   append-only attempt log
//	<prefix>:att:email:<email>         capped recent attempts per email
//	<prefix>:att:fail:<action>:<ip>    failure timestamps for rate limiting
//	<prefix>:consent:<id>              append-only consent ledger
//
// # Design
//
// Account mutations use WATCH/MULTI optimistic transactions with retry, so
// concurrent failure increments are never lost. Backup-code and token
// consumption rely on single-command atomicity (SREM, DEL) so at most one
// caller observes success.
//
// # What this package must NOT do
//
//   - Import blogauth or any sibling internal package other than domain.
//   - Store plaintext tokens or backup codes.
//   - Make authentication decisions.
package stores
