package mtcrypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
)

func SHA1Sum(b ...[]byte) [20]byte {
	h := sha1.New()
	for _, x := range b {
		h.Write(x)
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

func SHA256Sum(b ...[]byte) [32]byte {
	h := sha256.New()
	for _, x := range b {
		h.Write(x)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func littleEndianLowQWordOfSHA1(b []byte) uint64 {
	sum := SHA1Sum(b)
	return binary.LittleEndian.Uint64(sum[12:20])
}

// ServerSaltBootstrap XORs the low 64 bits of new_nonce with the low 64 bits
// of server_nonce to produce the handshake's initial server_salt, per
// spec.md §4.2 step 9.
func ServerSaltBootstrap(newNonce [32]byte, serverNonce [16]byte) int64 {
	a := binary.LittleEndian.Uint64(newNonce[0:8])
	b := binary.LittleEndian.Uint64(serverNonce[0:8])
	return int64(a ^ b)
}
