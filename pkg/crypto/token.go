package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

const (
	DefaultTokenLength = 32 // 256 bits
)

// TokenPair is a freshly minted opaque token and the digest we persist for it
type TokenPair struct {
	Token string // value returned to client
	Hash  string // value in storage
}

// GenerateToken returns byteLength random bytes, base64url encoded without padding.
// Non-positive lengths fall back to DefaultTokenLength.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func GenerateHashedToken() (*TokenPair, error) {
	token, err := GenerateToken(DefaultTokenLength)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Token: token, Hash: HashToken(token)}, nil
}

// HashToken is the lookup key for a token. Tokens are high entropy, so an
// unsalted sha256 is enough.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares token against a stored digest in constant time
func VerifyToken(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}
