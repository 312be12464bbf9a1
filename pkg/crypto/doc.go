// Package crypto holds the primitives whisper delegates to: argon2id password
// hashing and opaque session tokens that are stored only as sha256 digests.
package crypto
