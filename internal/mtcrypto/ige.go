// Package mtcrypto implements the cryptographic primitives MTProto v2 pins:
// AES-IGE for message bodies and the handshake's encrypted answer, AES-CTR
// for transport obfuscation, the protocol's RSA padding, and Diffie-Hellman
// key agreement. None of these constructions are off-the-shelf; the stdlib
// provides the AES block cipher and big-integer arithmetic this package
// builds them from.
package mtcrypto

import (
	"crypto/aes"
	"errors"
)

// IGEEncrypt implements AES-256-IGE (infinite garble extension) as specified
// by MTProto. key is 32 bytes, iv is 32 bytes (the concatenation of the two
// 16-byte IGE state vectors). len(plaintext) must be a multiple of the AES
// block size.
func IGEEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	return ige(key, iv, plaintext, true)
}

func IGEDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	return ige(key, iv, ciphertext, false)
}

func ige(key, iv, data []byte, encrypt bool) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("mtcrypto: ige input is not a multiple of the block size")
	}
	if len(iv) != 2*aes.BlockSize {
		return nil, errors.New("mtcrypto: ige iv must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	var prevCipher, prevPlain [aes.BlockSize]byte
	copy(prevCipher[:], iv[:aes.BlockSize])
	copy(prevPlain[:], iv[aes.BlockSize:])

	var tmp [aes.BlockSize]byte
	for off := 0; off < len(data); off += aes.BlockSize {
		block1 := data[off : off+aes.BlockSize]
		if encrypt {
			xorInto(tmp[:], block1, prevCipher[:])
			block.Encrypt(tmp[:], tmp[:])
			xorInto(tmp[:], tmp[:], prevPlain[:])
			copy(out[off:off+aes.BlockSize], tmp[:])
			copy(prevCipher[:], tmp[:])
			copy(prevPlain[:], block1)
		} else {
			xorInto(tmp[:], block1, prevPlain[:])
			block.Decrypt(tmp[:], tmp[:])
			xorInto(tmp[:], tmp[:], prevCipher[:])
			copy(out[off:off+aes.BlockSize], tmp[:])
			copy(prevCipher[:], block1)
			copy(prevPlain[:], tmp[:])
		}
	}
	return out, nil
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
