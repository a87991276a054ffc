package mtcrypto

import "crypto/sha256"

// Direction selects which side of the conversation a message key is being
// derived for; MTProto v2 mixes in a different auth-key slice depending on
// which way the message travels (x=0 client→server, x=8 server→client).
type Direction int

const (
	ClientToServer Direction = 0
	ServerToClient Direction = 8
)

// MsgKey computes the 16-byte msg_key for an outgoing (Client) or validates
// an incoming (Server) plaintext per MTProto v2: substr(SHA256(substr(auth_key,
// 88+x,32) ++ plaintext), 8, 16).
func MsgKey(authKey, plaintext []byte, dir Direction) [16]byte {
	h := sha256.New()
	h.Write(authKey[88+int(dir) : 88+int(dir)+32])
	h.Write(plaintext)
	sum := h.Sum(nil)
	var out [16]byte
	copy(out[:], sum[8:24])
	return out
}

// DeriveAESKeyIV derives the AES-256-IGE key and 32-byte iv (two chained
// 16-byte IGE vectors) from the auth key and message key, per MTProto v2
// §"Generating Message Key" / "Generating AES Key and Initialization Vector".
func DeriveAESKeyIV(authKey []byte, msgKey [16]byte, dir Direction) (key [32]byte, iv [32]byte) {
	x := int(dir)

	ha := sha256.New()
	ha.Write(msgKey[:])
	ha.Write(authKey[x : x+36])
	shaA := ha.Sum(nil)

	hb := sha256.New()
	hb.Write(authKey[40+x : 40+x+36])
	hb.Write(msgKey[:])
	shaB := hb.Sum(nil)

	copy(key[0:8], shaA[0:8])
	copy(key[8:24], shaB[8:24])
	copy(key[24:32], shaA[24:32])

	copy(iv[0:8], shaB[0:8])
	copy(iv[8:24], shaA[8:24])
	copy(iv[24:32], shaB[24:32])
	return key, iv
}

// AuthKeyID returns the low 64 bits of SHA1(authKey), little-endian, per
// spec.md §3's AuthKey definition.
func AuthKeyID(authKey []byte) int64 {
	return int64(littleEndianLowQWordOfSHA1(authKey))
}
