package oauth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Lengths of the random values minted by the bridge.
const (
	StateLength        = 40
	CodeLength         = 40
	AccessTokenLength  = 48
	RefreshTokenLength = 48
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomToken returns n characters drawn uniformly from [A-Za-z0-9] using
// crypto/rand.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}

	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random token: %w", err)
		}
		buf[i] = alphanumeric[idx.Int64()]
	}
	return string(buf), nil
}
