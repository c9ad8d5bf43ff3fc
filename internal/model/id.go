package model

import (
	"crypto/rand"
	"math/big"

	"github.com/oklog/ulid/v2"
)

// Session id format. The alphabet leaves out characters that are easy to
// misread (0, I, J, O, U).
const (
	SessionIDAlphabet = "123456789ABCDEFGHKLMNPQRSTVWXYZ"
	SessionIDLength   = 10
)

// NewID generates a new ULID string for use as a batch identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewSessionID generates a random session id of SessionIDLength characters
// drawn uniformly from SessionIDAlphabet.
func NewSessionID() string {
	max := big.NewInt(int64(len(SessionIDAlphabet)))
	b := make([]byte, SessionIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("model: crypto/rand failed: " + err.Error())
		}
		b[i] = SessionIDAlphabet[n.Int64()]
	}
	return string(b)
}
