package api

import "golang.org/x/crypto/bcrypt"

// hashPassword derives a one-way hash for storage. The plaintext is never
// persisted or logged.
func hashPassword(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// checkPassword reports whether plain matches the stored hash.
func checkPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
