// Package auth issues and verifies agent session tokens.
//
// Sessions are HS256 JWTs signed with the configured session secret. Issue
// hands back the token together with its expiry; the presence monitor stores
// both and validates by token equality plus an expiry sweep, so the expiry
// embedded in the claims and the one returned to the caller always agree.
//
// Verify is the inbound half: it checks the signature and expiry and
// extracts the agent id from the "sub" claim. Expired tokens surface as
// ErrExpiredToken, everything else malformed as ErrInvalidToken.
package auth
