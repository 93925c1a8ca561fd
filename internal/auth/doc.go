// Package auth implements the token codec and HTTP authentication
// middleware.
//
// Tokens are stateless HS256 JWTs carrying identity claims plus a class
// discriminator ("access" or "refresh"). Access tokens authorize API calls
// directly; refresh tokens are only accepted by the refresh endpoint.
// Verification enforces the class strictly, so neither kind can stand in
// for the other even though both share the signing key.
//
// There is no revocation list: a token remains valid until its expiry or a
// signing-key rotation. Logout is a client-side discard.
package auth
