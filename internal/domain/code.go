package domain

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of the human-shareable join token.
const CodeLength = 6

// CodeExists answers whether a candidate code is already taken.
type CodeExists func(ctx context.Context, code string) (bool, error)

// NewJoinCode generates a unique uppercase alphanumeric code by rejection
// sampling against the store. Collisions are retried rather than locked;
// concurrent generation across rooms is expected.
func NewJoinCode(ctx context.Context, exists CodeExists) (string, error) {
	for {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
}

func randomCode() (string, error) {
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
