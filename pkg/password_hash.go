package pkg

import "golang.org/x/crypto/bcrypt"

const PasswordHashCost = 12

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	return BytesToString(bytes), err
}

// CheckPasswordHash compares in constant time; hashes made by pgcrypto's
// gen_salt('bf') are accepted as well.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
