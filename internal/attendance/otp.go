package attendance

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	minCode = 100000
	maxCode = 999999
)

// CodeGenerator produces a fresh one-time code.
type CodeGenerator func() (string, error)

// RandomCode draws a 6 digit code uniformly from [100000, 999999] using
// crypto/rand. Codes never start with zero.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}
