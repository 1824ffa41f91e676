package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword checks password against hash. Hashes written by the old
// browser client are base64 encodings of the password and are still accepted.
func VerifyPassword(password, hash string) bool {
	if isBcrypt(hash) {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	legacy, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(legacy, []byte(password)) == 1
}

// unknownUserHash is compared against on logins for unknown emails so they
// cost the same bcrypt round as a wrong password.
var unknownUserHash = sync.OnceValue(func() string {
	h, err := HashPassword("unknown-user-placeholder")
	if err != nil {
		panic(err)
	}
	return h
})

// NeedsRehash reports whether hash uses the legacy encoding.
func NeedsRehash(hash string) bool {
	return !isBcrypt(hash)
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
