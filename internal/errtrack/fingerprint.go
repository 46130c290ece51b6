// Package errtrack groups client errors by fingerprint and tracks whether
// they are resolved.
package errtrack

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ErrorDTO holds the fields identifying an error.
type ErrorDTO struct {
	PID      string
	Name     string
	Message  string
	Filename string
	Lineno   int64
	Colno    int64
}

// ID returns the fingerprint of e. Fields are length prefixed so that moving
// bytes between adjacent fields changes the result.
func ID(e ErrorDTO) string {
	h := xxhash.New()
	var b [8]byte
	for _, f := range []string{
		e.PID, e.Name, e.Message, e.Filename,
		strconv.FormatInt(e.Lineno, 10), strconv.FormatInt(e.Colno, 10),
	} {
		binary.BigEndian.PutUint64(b[:], uint64(len(f)))
		h.Write(b[:])
		h.WriteString(f)
	}
	binary.BigEndian.PutUint64(b[:], h.Sum64())
	return hex.EncodeToString(b[:])
}
