package mtcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

// ObfuscationHeaderSize is the size of the random handshake header the
// intermediate transport exchanges before any framed traffic, per spec.md
// §4.1.
const ObfuscationHeaderSize = 64

var forbiddenPrefixes = [][]byte{
	[]byte("HEAD"),
	[]byte("POST"),
	[]byte("GET "),
	[]byte("OPTI"),
	{0xee, 0xee, 0xee, 0xee},
	{0x16, 0x03, 0x01, 0x02},
}

// ObfuscatedHeader is the result of generating an obfuscation handshake:
// Wire is the 64 bytes to send to the peer, Encrypt/Decrypt are the AES-256
// CTR streams to apply to everything sent/received afterward.
type ObfuscatedHeader struct {
	Wire    [ObfuscationHeaderSize]byte
	Encrypt cipher.Stream
	Decrypt cipher.Stream
}

// GenerateObfuscationHeader builds a fresh obfuscation handshake per
// spec.md §4.1: 64 random bytes subject to documented constraints (first
// byte != 0xef; first dword not a known plaintext-protocol prefix; dword at
// offset 4 not all-zero), with protocolTag stamped into bytes [56:60) before
// the header is self-encrypted and sent.
func GenerateObfuscationHeader(protocolTag [4]byte) (*ObfuscatedHeader, error) {
	var random [ObfuscationHeaderSize]byte
	for {
		if _, err := rand.Read(random[:]); err != nil {
			return nil, err
		}
		if random[0] == 0xef {
			continue
		}
		if bytes.Equal(random[4:8], []byte{0, 0, 0, 0}) {
			continue
		}
		bad := false
		for _, prefix := range forbiddenPrefixes {
			if bytes.Equal(random[0:4], prefix) {
				bad = true
				break
			}
		}
		if bad {
			continue
		}
		break
	}
	copy(random[56:60], protocolTag[:])

	reversed := make([]byte, ObfuscationHeaderSize)
	for i, b := range random {
		reversed[ObfuscationHeaderSize-1-i] = b
	}

	encStream, err := newAESCTRStream(random[8:40], random[40:56])
	if err != nil {
		return nil, err
	}
	decStream, err := newAESCTRStream(reversed[8:40], reversed[40:56])
	if err != nil {
		return nil, err
	}

	encryptedFull := make([]byte, ObfuscationHeaderSize)
	encStream.XORKeyStream(encryptedFull, random[:])
	copy(random[56:64], encryptedFull[56:64])

	return &ObfuscatedHeader{Wire: random, Encrypt: encStream, Decrypt: decStream}, nil
}

func newAESCTRStream(key, iv []byte) (cipher.Stream, error) {
	if len(key) != 32 || len(iv) != 16 {
		return nil, errors.New("mtcrypto: bad obfuscation key/iv length")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}
