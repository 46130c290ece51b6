package userid

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Salt derives the visitor hash key of a rotation window. Keys of two
// different windows are unrelated, so visitors can not be correlated across
// windows.
type Salt struct {
	secret [32]byte
	window time.Duration
}

func NewSalt(secret string, window time.Duration) Salt {
	return Salt{secret: blake2b.Sum256([]byte(secret)), window: window}
}

func (s Salt) Window() time.Duration { return s.window }

// At returns the key in effect at t and the start of its window.
func (s Salt) At(t time.Time) (key [16]byte, rotatedAt time.Time) {
	rotatedAt = t.UTC().Truncate(s.window)
	h, err := blake2b.New(16, s.secret[:])
	if err != nil {
		panic("userid: invalid salt key " + err.Error())
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(rotatedAt.Unix()))
	h.Write(b[:])
	copy(key[:], h.Sum(nil))
	return
}
