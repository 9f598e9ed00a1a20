package clubhouse

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// codeHashCost is deliberately lower than a password hash would use; codes
// live for minutes and carry only six digits of entropy, so the cost mostly
// bounds how fast the issue path can run.
const codeHashCost = 10

// HashCode will generate a hash for a verification code
func HashCode(code string) (string, error) {
	if code == "" {
		return "", errors.New("cannot hash an empty code")
	}

	h, err := bcrypt.GenerateFromPassword([]byte(code), codeHashCost)
	return string(h), err
}

// CompareCodeAndHash will validate the given cleartext code matches
// the stored hash. The comparison runs in constant time.
func CompareCodeAndHash(code, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongCode
		}
		return err
	}
	return nil
}
