package password

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	alphanumericChars = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	specialChars      = "!@#$%^&*()_-+=[{]};:<>|./?"
)

// Generate returns a random password of length runes containing at least
// minSpecial characters from the special set. Character choice and placement
// both come from crypto/rand.
func Generate(length, minSpecial int) (string, error) {
	if length <= 0 {
		return "", errors.New("generated password length must be > 0")
	}
	if minSpecial < 0 || minSpecial > length {
		return "", errors.New("generated password special count must be within length")
	}

	out := make([]byte, length)
	for i := 0; i < length; i++ {
		set := alphanumericChars + specialChars
		if i < minSpecial {
			set = specialChars
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Fisher-Yates so the guaranteed specials are not always leading.
	for i := length - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
