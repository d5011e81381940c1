// Package identity derives stable client ids from a transport-supplied
// remote address, or hands out random ids in development.
package identity

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// idLen is the number of hex-encoded bytes kept from the digest. Constant
// across a process so ids from the same input are always the same length.
const idLen = 20

// Derive returns a client id for addr. In production it is the truncated
// BLAKE2b-256 digest of salt1||addr||salt2, hex-encoded; the same addr and
// salts always yield the same id within a process. Outside production it
// returns a fresh random token so restarts and multiple tabs from the same
// machine don't collide during local development.
func Derive(addr, salt1, salt2 string, production bool) string {
	if !production {
		return randomID()
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a bad key length, and we pass nil.
		return randomID()
	}
	h.Write([]byte(salt1))
	h.Write([]byte(addr))
	h.Write([]byte(salt2))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:idLen])
}

func randomID() string {
	buf := make([]byte, idLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand reading from the OS CSPRNG does not fail in practice;
		// if it ever does, fall back to an all-zero id rather than panic.
		return hex.EncodeToString(buf)
	}
	return hex.EncodeToString(buf)
}
