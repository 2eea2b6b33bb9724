// Package auth covers the three credential mechanisms of the server:
// bcrypt-hashed passwords, short-lived JWT bearer tokens signed with
// JWT_SECRET_KEY, and long-lived sk-mcpo API keys stored AES-GCM
// encrypted under API_KEY_ENCRYPTION_KEY.
package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash of a plain-text password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
