package auth

import (
	"crypto/rand"
	"fmt"

	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
)

// tmpAESKeyIV derives the AES-256-IGE key/iv the handshake uses to wrap
// server_DH_inner_data and client_DH_inner_data, per spec.md §4.2 step 5:
// keyed by (new_nonce, server_nonce), independent of the session's own v2
// message-key derivation.
func tmpAESKeyIV(newNonce [32]byte, serverNonce [16]byte) (key [32]byte, iv [32]byte) {
	nsSHA := mtcrypto.SHA1Sum(newNonce[:], serverNonce[:])
	snSHA := mtcrypto.SHA1Sum(serverNonce[:], newNonce[:])
	nnSHA := mtcrypto.SHA1Sum(newNonce[:], newNonce[:])

	copy(key[0:20], nsSHA[:])
	copy(key[20:32], snSHA[0:12])

	copy(iv[0:8], snSHA[12:20])
	copy(iv[8:28], nnSHA[:])
	copy(iv[28:32], newNonce[0:4])
	return key, iv
}

// sealInnerData wraps data with its SHA1 prefix and random padding to a
// multiple of 16 bytes, then AES-IGE encrypts it — the shape both
// server_DH_inner_data's answer and client_DH_inner_data's request share.
func sealInnerData(key, iv [32]byte, data []byte) ([]byte, error) {
	hash := mtcrypto.SHA1Sum(data)
	padded := make([]byte, 0, 20+len(data)+15)
	padded = append(padded, hash[:]...)
	padded = append(padded, data...)
	if rem := len(padded) % 16; rem != 0 {
		pad := make([]byte, 16-rem)
		if _, err := rand.Read(pad); err != nil {
			return nil, err
		}
		padded = append(padded, pad...)
	}
	return mtcrypto.IGEEncrypt(key[:], iv[:], padded)
}

// openInnerData decrypts and strips the SHA1 prefix produced by
// sealInnerData, returning the inner TL bytes (padding included — callers
// stop reading once their decoder is satisfied).
func openInnerData(key, iv [32]byte, encrypted []byte) ([]byte, error) {
	plain, err := mtcrypto.IGEDecrypt(key[:], iv[:], encrypted)
	if err != nil {
		return nil, err
	}
	if len(plain) < 20 {
		return nil, fmt.Errorf("auth: decrypted inner data too short")
	}
	wantHash := plain[0:20]
	body := plain[20:]
	// The hash covers the data only, not the 0..15 bytes of padding that
	// follow it, so each possible padding length is tried.
	for pad := 0; pad < 16 && pad <= len(body); pad++ {
		gotHash := mtcrypto.SHA1Sum(body[:len(body)-pad])
		if string(gotHash[:]) == string(wantHash) {
			return body, nil
		}
	}
	return nil, fmt.Errorf("auth: inner data SHA1 mismatch")
}

// newNonceHash computes SHA1(new_nonce ++ marker ++ auth_key_aux_hash)[4:20],
// the quantity dh_gen_ok/retry/fail echo back (marker is 1/2/3 respectively).
func newNonceHash(newNonce [32]byte, marker byte, authKey []byte) [16]byte {
	authKeySHA := mtcrypto.SHA1Sum(authKey)
	sum := mtcrypto.SHA1Sum(newNonce[:], []byte{marker}, authKeySHA[0:8])
	var out [16]byte
	copy(out[:], sum[4:20])
	return out
}
