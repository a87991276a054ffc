// Package auth implements the auth-key negotiator (component B, spec.md
// §4.2): the req_pq → DH_params → set_client_DH_params handshake that turns
// a freshly framed, unauthorized connection into a 2048-bit shared auth key,
// an initial server salt, and a local/server clock offset.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"time"

	"github.com/ansel1/merry/v2"
	"golang.org/x/sync/semaphore"

	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
	"github.com/gomtproto/mtprotocore/internal/tl"
	"github.com/gomtproto/mtprotocore/internal/transport"
)

var (
	ErrNoMatchingRsaKey = merry.New("auth: no configured RSA key matches the server's fingerprints")
	ErrNonceMismatch    = merry.New("auth: nonce mismatch")
	ErrDHRetryExhausted = merry.New("auth: dh_gen_retry exhausted without success")
	ErrDHGenFail        = merry.New("auth: server rejected client_DH_params (dh_gen_fail)")
)

const maxDHRetries = 5

// Negotiator runs the handshake against a freshly dialed, unauthorized
// transport.Conn.
type Negotiator struct {
	Keys         *mtcrypto.PublicRsaKeyRegister
	PrimeChecker mtcrypto.DhPrimeChecker
	Backoff      BackoffSpec

	// CPUSem gates the handshake's CPU-bound steps (RSA padding, DH
	// modexp, Pollard-rho factorization) so a burst of concurrent DC
	// handshakes can't spawn unbounded heavy computation at once
	// (SPEC_FULL.md §5). A nil value runs unbounded (no gate).
	CPUSem *semaphore.Weighted

	// Temporary, when set, requests an ephemeral auth key (spec.md §4.2's
	// "temp-variant") that expires after Expires.
	Temporary bool
	Expires   time.Duration

	DC int32
}

// Result is the product of a successful handshake.
type Result struct {
	AuthKey    []byte
	AuthKeyID  int64
	ServerSalt int64
	TimeOffset int32
}

// Handshake runs the full protocol once, retrying the whole exchange under
// n.Backoff on transport/protocol errors; nonce mismatches abort immediately
// without retry (spec.md §4.2 "Retries").
func (n *Negotiator) Handshake(ctx context.Context, dial func(context.Context) (transport.Conn, error)) (*Result, error) {
	backoff := n.Backoff.orDefault()
	var lastErr error
	for attempt := 0; backoff.MaxRetries == 0 || attempt < backoff.MaxRetries; attempt++ {
		conn, err := dial(ctx)
		if err != nil {
			lastErr = err
		} else {
			res, err := n.attempt(ctx, conn)
			conn.Close()
			if err == nil {
				return res, nil
			}
			if merry.Is(err, ErrNonceMismatch) {
				return nil, err
			}
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.Delay):
		}
	}
	return nil, merry.Prependf(lastErr, "auth: handshake failed after retries")
}

func (n *Negotiator) attempt(ctx context.Context, conn transport.Conn) (*Result, error) {
	ids := &plainMsgIDs{}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, merry.Wrap(err)
	}

	req := tl.ReqPQMulti{Nonce: nonce}
	if err := n.sendObj(conn, ids, req); err != nil {
		return nil, err
	}
	body, err := recvPlain(conn)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	resPQ, err := tl.DecodeResPQ(tl.NewDecodeBuf(body))
	if err != nil {
		return nil, merry.Wrap(err)
	}
	if resPQ.Nonce != nonce {
		return nil, ErrNonceMismatch.Here()
	}

	pq := bytesToUint64(resPQ.Pq)
	p, q, err := n.factor(ctx, pq)
	if err != nil {
		return nil, merry.Wrap(err)
	}

	pub, ok := n.Keys.Find(resPQ.Fingerprints)
	if !ok {
		return nil, ErrNoMatchingRsaKey.Here()
	}

	var newNonce [32]byte
	if _, err := rand.Read(newNonce[:]); err != nil {
		return nil, merry.Wrap(err)
	}

	innerData := tl.PQInnerDataDc{
		Pq:          resPQ.Pq,
		P:           uint64ToBytes(p),
		Q:           uint64ToBytes(q),
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
		NewNonce:    newNonce,
		DC:          n.DC,
		Temp:        n.Temporary,
		ExpiresIn:   int32(n.Expires / time.Second),
	}
	innerBuf := tl.NewEncodeBuf(256)
	innerBuf.Object(innerData)

	encryptedData, err := n.rsaEncrypt(ctx, pub, innerBuf.Bytes())
	if err != nil {
		return nil, merry.Wrap(err)
	}

	dhReq := tl.ReqDHParams{
		Nonce:                nonce,
		ServerNonce:          resPQ.ServerNonce,
		P:                    innerData.P,
		Q:                    innerData.Q,
		PublicKeyFingerprint: mtcrypto.Fingerprint(pub),
		EncryptedData:        encryptedData,
	}
	if err := n.sendObj(conn, ids, dhReq); err != nil {
		return nil, err
	}
	body, err = recvPlain(conn)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	dhParamsAny, err := tl.DecodeServerDHParams(tl.NewDecodeBuf(body))
	if err != nil {
		return nil, merry.Wrap(err)
	}
	dhOk, ok := dhParamsAny.(*tl.ServerDHParamsOk)
	if !ok {
		return nil, merry.New("auth: server rejected DH params (server_DH_params_fail)")
	}
	if dhOk.Nonce != nonce || dhOk.ServerNonce != resPQ.ServerNonce {
		return nil, ErrNonceMismatch.Here()
	}

	tmpKey, tmpIV := tmpAESKeyIV(newNonce, resPQ.ServerNonce)
	innerPlain, err := openInnerData(tmpKey, tmpIV, dhOk.EncryptedAnswer)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	dhInner, err := tl.DecodeServerDHInnerData(tl.NewDecodeBuf(innerPlain))
	if err != nil {
		return nil, merry.Wrap(err)
	}
	if dhInner.Nonce != nonce || dhInner.ServerNonce != resPQ.ServerNonce {
		return nil, ErrNonceMismatch.Here()
	}

	dhPrime := new(big.Int).SetBytes(dhInner.DhPrime)
	if err := n.PrimeChecker.Check(dhPrime, dhInner.G); err != nil {
		return nil, merry.Wrap(err)
	}
	ga := new(big.Int).SetBytes(dhInner.GA)
	if err := mtcrypto.ValidateDHExchangeParty(ga, dhPrime); err != nil {
		return nil, merry.Wrap(err)
	}

	timeOffset := dhInner.ServerTime - int32(time.Now().Unix())

	var retryID int64
	for retry := 0; ; retry++ {
		if retry > maxDHRetries {
			return nil, ErrDHRetryExhausted.Here()
		}
		priv, err := n.dhPrivate(ctx)
		if err != nil {
			return nil, merry.Wrap(err)
		}
		gb := priv.GB(dhPrime, dhInner.G)
		authKey := priv.SharedSecret(dhPrime, ga)

		clientInner := tl.ClientDHInnerData{Nonce: nonce, ServerNonce: resPQ.ServerNonce, RetryID: retryID, GB: gb}
		clientInnerBuf := tl.NewEncodeBuf(320)
		clientInnerBuf.Object(clientInner)
		encryptedClient, err := sealInnerData(tmpKey, tmpIV, clientInnerBuf.Bytes())
		if err != nil {
			return nil, merry.Wrap(err)
		}

		setReq := tl.SetClientDHParams{Nonce: nonce, ServerNonce: resPQ.ServerNonce, EncryptedData: encryptedClient}
		if err := n.sendObj(conn, ids, setReq); err != nil {
			return nil, err
		}
		body, err = recvPlain(conn)
		if err != nil {
			return nil, merry.Wrap(err)
		}
		genAny, err := tl.DecodeDHGenResult(tl.NewDecodeBuf(body))
		if err != nil {
			return nil, merry.Wrap(err)
		}

		switch g := genAny.(type) {
		case *tl.DHGenOk:
			if g.Nonce != nonce || g.ServerNonce != resPQ.ServerNonce {
				return nil, ErrNonceMismatch.Here()
			}
			want := newNonceHash(newNonce, 1, authKey)
			if g.NewNonceHash1 != want {
				return nil, ErrNonceMismatch.Here()
			}
			return &Result{
				AuthKey:    authKey,
				AuthKeyID:  mtcrypto.AuthKeyID(authKey),
				ServerSalt: mtcrypto.ServerSaltBootstrap(newNonce, resPQ.ServerNonce),
				TimeOffset: timeOffset,
			}, nil
		case *tl.DHGenRetry:
			want := newNonceHash(newNonce, 2, authKey)
			if g.NewNonceHash2 != want {
				return nil, ErrNonceMismatch.Here()
			}
			authKeySHA := mtcrypto.SHA1Sum(authKey)
			retryID = int64(authKeySHA[0]) // low bytes feed the next retry_id per spec.md step 8
			continue
		case *tl.DHGenFail:
			want := newNonceHash(newNonce, 3, authKey)
			if g.NewNonceHash3 != want {
				return nil, ErrNonceMismatch.Here()
			}
			return nil, ErrDHGenFail.Here()
		default:
			return nil, merry.Errorf("auth: unexpected dh_gen_result %T", g)
		}
	}
}

func (n *Negotiator) sendObj(conn transport.Conn, ids *plainMsgIDs, obj tl.Object) error {
	buf := tl.NewEncodeBuf(256)
	buf.Object(obj)
	if err := sendPlain(conn, ids, buf.Bytes()); err != nil {
		return merry.Wrap(err)
	}
	return nil
}

func (n *Negotiator) factor(ctx context.Context, pq uint64) (p, q uint64, err error) {
	release := n.acquireCPU(ctx)
	defer release()
	return mtcrypto.FactorPQ(pq)
}

func (n *Negotiator) rsaEncrypt(ctx context.Context, pub *rsa.PublicKey, data []byte) ([]byte, error) {
	release := n.acquireCPU(ctx)
	defer release()
	return mtcrypto.EncryptRSAPad(pub, data)
}

func (n *Negotiator) dhPrivate(ctx context.Context) (*mtcrypto.DHPrivate, error) {
	release := n.acquireCPU(ctx)
	defer release()
	return mtcrypto.NewDHPrivate()
}

// acquireCPU blocks until a CPU-bound slot is available, returning a
// release func; with no semaphore configured it is a no-op.
func (n *Negotiator) acquireCPU(ctx context.Context) func() {
	if n.CPUSem == nil {
		return func() {}
	}
	_ = n.CPUSem.Acquire(ctx, 1)
	return func() { n.CPUSem.Release(1) }
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}
