package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials holds the single configured credential pair the login endpoint
// accepts. PasswordHash is a bcrypt hash, never the plaintext password.
type Credentials struct {
	Username     string
	PasswordHash string
}

// CanonicalizeUsername normalizes usernames for comparison.
func CanonicalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Check verifies a submitted username/password pair against the configured
// credentials. The username comparison is constant-time and the bcrypt
// comparison runs regardless of the username result, so response timing does
// not reveal which half failed.
func (c Credentials) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare(
		[]byte(CanonicalizeUsername(username)),
		[]byte(CanonicalizeUsername(c.Username)),
	) == 1

	passOK := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil

	return userOK && passOK
}
