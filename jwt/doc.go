// Package jwt signs and verifies the two bearer credentials issued by
// authgate: short-lived access tokens carrying an identity snapshot, and
// long-lived refresh tokens carrying a token/family lineage reference.
//
// Both token kinds embed a "typ" claim so a refresh token can never be
// accepted where an access token is expected, and vice versa. Signature
// verification proves integrity only; refresh tokens must additionally be
// checked against the durable token store, because revocation state lives
// there, not in the token.
package jwt
