// Package idgen issues prefixed public identifiers such as pay_XXXX.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	PrefixOrder   = "order_"
	PrefixPayment = "pay_"
	PrefixRefund  = "rfnd_"

	// EncodedLength is the number of base62 characters needed for 128 bits.
	EncodedLength = 22

	defaultMaxAttempts = 5
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var ErrExhausted = errors.New("idgen: could not find a free identifier")

// ExistsFunc reports whether id is already taken in the backing store.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// New returns prefix followed by a fixed-length base62 encoding of 128 random bits.
func New(prefix string) string {
	id := uuid.New()
	return prefix + encode(id[:])
}

// Unique draws identifiers until exists reports one as free.
func Unique(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id := New(prefix)
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}

func encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	base := big.NewInt(int64(len(alphabet)))
	mod := new(big.Int)

	out := make([]byte, EncodedLength)
	for i := EncodedLength - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		out[i] = alphabet[mod.Int64()]
	}
	return string(out)
}
