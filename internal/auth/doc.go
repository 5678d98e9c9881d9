// Package auth implements token issuance and verification for inkstream.
//
// Tokens are HS256-signed JWTs whose subject is the user id. Passwords are
// hashed with bcrypt. Middleware wraps protected handlers and attaches the
// authenticated user id to the request context; handlers read it back with
// UserID(ctx).
package auth
