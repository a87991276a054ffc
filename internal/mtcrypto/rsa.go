package mtcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

// PublicRsaKeyRegister resolves a server-sent fingerprint to one of the
// caller-configured Telegram RSA public keys (spec.md §4.2 step 3).
type PublicRsaKeyRegister struct {
	byFingerprint map[int64]*rsa.PublicKey
}

func NewPublicRsaKeyRegister() *PublicRsaKeyRegister {
	return &PublicRsaKeyRegister{byFingerprint: make(map[int64]*rsa.PublicKey)}
}

// AddPEM parses a PKCS#1 or PKIX PEM-encoded RSA public key and indexes it
// by its MTProto fingerprint.
func (r *PublicRsaKeyRegister) AddPEM(pemStr string) error {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return errors.New("mtcrypto: no PEM block found")
	}
	pub, err := parsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("mtcrypto: parsing RSA public key: %w", err)
	}
	fp := Fingerprint(pub)
	r.byFingerprint[fp] = pub
	return nil
}

func (r *PublicRsaKeyRegister) Add(pub *rsa.PublicKey) {
	r.byFingerprint[Fingerprint(pub)] = pub
}

// Find returns the key matching one of the server-offered fingerprints, in
// the order offered (spec.md: "matching a fingerprint against a
// caller-supplied PublicRsaKeyRegister").
func (r *PublicRsaKeyRegister) Find(fingerprints []int64) (*rsa.PublicKey, bool) {
	for _, fp := range fingerprints {
		if pub, ok := r.byFingerprint[fp]; ok {
			return pub, true
		}
	}
	return nil, false
}

// Fingerprint computes the MTProto RSA key fingerprint: the low 64 bits of
// SHA1 over the TL-bare-serialized (n, e) pair.
func Fingerprint(pub *rsa.PublicKey) int64 {
	b := tl.NewEncodeBuf(300)
	b.StringBytes(pub.N.Bytes())
	eBytes := big.NewInt(int64(pub.E)).Bytes()
	b.StringBytes(eBytes)
	return AuthKeyID(b.Bytes())
}

// EncryptRSAPad implements Telegram's "RSA_PAD" scheme used to encrypt the
// handshake's inner data (PQInnerData/PQInnerDataDc) under the server's RSA
// key: it is not textbook OAEP, it mixes an AES-IGE pass keyed by a random
// temp key into the padding so that two encryptions of the same plaintext
// never collide, then repeats with a fresh temp key if the final big-endian
// integer doesn't fit under the modulus.
func EncryptRSAPad(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	if len(data) > 144 {
		return nil, fmt.Errorf("mtcrypto: rsa_pad input too large: %d bytes", len(data))
	}
	keySize := (pub.N.BitLen() + 7) / 8
	if keySize != 256 {
		return nil, fmt.Errorf("mtcrypto: unexpected RSA modulus size: %d bytes", keySize)
	}

	for attempt := 0; attempt < 64; attempt++ {
		dataWithPadding := make([]byte, 192)
		copy(dataWithPadding, data)
		if _, err := rand.Read(dataWithPadding[len(data):]); err != nil {
			return nil, err
		}

		reversed := make([]byte, 192)
		for i, b := range dataWithPadding {
			reversed[191-i] = b
		}

		var tempKey [32]byte
		if _, err := rand.Read(tempKey[:]); err != nil {
			return nil, err
		}

		dataWithHash := make([]byte, 224)
		copy(dataWithHash, reversed)
		hash := SHA256Sum(tempKey[:], dataWithPadding)
		copy(dataWithHash[192:], hash[:])

		aesEncrypted, err := IGEEncrypt(tempKey[:], make([]byte, 32), dataWithHash)
		if err != nil {
			return nil, err
		}

		aesHash := SHA256Sum(aesEncrypted)
		tempKeyXor := make([]byte, 32)
		for i := range tempKeyXor {
			tempKeyXor[i] = tempKey[i] ^ aesHash[i]
		}

		keyAesEncrypted := append(append([]byte{}, tempKeyXor...), aesEncrypted...)

		asInt := new(big.Int).SetBytes(keyAesEncrypted)
		if asInt.Cmp(pub.N) >= 0 {
			continue // collided with/exceeded the modulus, retry with a new temp key
		}

		enc := new(big.Int).Exp(asInt, big.NewInt(int64(pub.E)), pub.N)
		out := make([]byte, 256)
		enc.FillBytes(out)
		return out, nil
	}
	return nil, errors.New("mtcrypto: rsa_pad failed to find a fitting encoding")
}

// parsePKCS1PublicKey accepts both PKCS#1 "RSA PUBLIC KEY" and PKIX "PUBLIC
// KEY" PEM bodies.
func parsePKCS1PublicKey(der []byte) (*rsa.PublicKey, error) {
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("mtcrypto: PEM block is not an RSA public key")
	}
	return rsaPub, nil
}
