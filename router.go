package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ansel1/merry/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gomtproto/mtprotocore/internal/auth"
	"github.com/gomtproto/mtprotocore/internal/logging"
	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
	"github.com/gomtproto/mtprotocore/internal/session"
	"github.com/gomtproto/mtprotocore/internal/tl"
	"github.com/gomtproto/mtprotocore/internal/transport"
)

// defaultFloodWaitCap is spec.md §4.4's documented default maximum for the
// FLOOD_WAIT auto-retry policy; longer waits are surfaced as errors.
const defaultFloodWaitCap = 60 * time.Second

// ClientGroup is the client group / RPC router (component D): it owns one
// session.Engine per DC, a designated main DC, and the migration/flood-wait
// policies spec.md §4.4 describes.
type ClientGroup struct {
	cfg     Config
	log     logging.Logger
	decoder tl.Decoder
	rsaKeys *mtcrypto.PublicRsaKeyRegister
	primes  mtcrypto.DhPrimeChecker
	cpuSem  *semaphore.Weighted

	FloodWaitCap time.Duration

	// FloodHandler, when set, overrides the default capped-wait policy for
	// FLOOD_WAIT_N errors: it is called with the RpcError and returns
	// whether the caller has already handled the wait and the request
	// should be retried immediately. A nil FloodHandler (the default) runs
	// the spec's own wait-then-retry policy below, grounded in gogram's
	// MTProto.floodHandler.
	FloodHandler func(err error) bool

	mu        sync.Mutex
	sessions  map[int32]*session.Engine
	dcByID    map[int32]DataCenter
	dcOptions *DcOptions
	mainDC    int32
	closed    bool
	stopCh    chan struct{}

	updates chan tl.Object
}

// NewClientGroup builds a router. decoder resolves the TL schema objects
// this core itself doesn't model (everything beyond the envelope and
// handshake constructors). rsaKeys must be preloaded by the caller with at
// least one RSA public key matching the target DCs.
func NewClientGroup(cfg Config, decoder tl.Decoder, rsaKeys *mtcrypto.PublicRsaKeyRegister, log logging.Logger) *ClientGroup {
	cfg = cfg.withDefaults()
	g := &ClientGroup{
		cfg:          cfg,
		log:          log,
		decoder:      decoder,
		rsaKeys:      rsaKeys,
		primes:       mtcrypto.NewDefaultDhPrimeChecker(),
		cpuSem:       semaphore.NewWeighted(4),
		FloodWaitCap: defaultFloodWaitCap,
		sessions:     make(map[int32]*session.Engine),
		dcByID:       make(map[int32]DataCenter),
		dcOptions:    NewDcOptions(cfg.MainDC),
		mainDC:       cfg.MainDC.ID,
		stopCh:       make(chan struct{}),
		updates:      make(chan tl.Object, 256),
	}
	g.dcByID[cfg.MainDC.ID] = cfg.MainDC
	if opts, err := cfg.Store.LoadDcOptions(); err == nil {
		g.dcOptions = opts
		for _, dc := range opts.All() {
			g.dcByID[dc.ID] = dc
		}
	}
	return g
}

func (g *ClientGroup) Updates() <-chan tl.Object { return g.updates }

// Close closes every open session concurrently, resolving once all have
// reached Closed (spec.md §4.4).
func (g *ClientGroup) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	sessions := make([]*session.Engine, 0, len(g.sessions))
	for _, e := range g.sessions {
		sessions = append(sessions, e)
	}
	g.mu.Unlock()
	close(g.stopCh)

	var eg errgroup.Group
	for _, e := range sessions {
		e := e
		eg.Go(func() error { return e.Close() })
	}
	return eg.Wait()
}

// SetMain opens (or reuses) a session for dcID and promotes it to main; the
// previous main session is left alone (idle-eviction is the caller's
// responsibility via Close/a higher-level janitor, per spec.md §4.4).
func (g *ClientGroup) SetMain(ctx context.Context, dcID int32) (*session.Engine, error) {
	e, err := g.openSession(ctx, dcID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.mainDC = dcID
	g.mu.Unlock()
	return e, nil
}

// Send submits request against dcID, lazily opening the session, and
// applies the migration and FLOOD_WAIT policies spec.md §4.4 describes.
func (g *ClientGroup) Send(ctx context.Context, dcID int32, request tl.Object) (tl.Object, error) {
	for {
		e, err := g.openSession(ctx, dcID)
		if err != nil {
			return nil, err
		}
		respCh, err := e.Send(request, true, true)
		if err != nil {
			return nil, merry.Wrap(err)
		}

		var resp session.Response
		select {
		case resp = <-respCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if resp.Err == nil {
			return resp.Obj, nil
		}

		if target, kind, ok := IsMigrate(resp.Err); ok {
			if err := g.ensureDcOptionKnown(ctx, dcID, target); err != nil {
				return nil, err
			}
			if kind == "USER" {
				if _, err := g.SetMain(ctx, target); err != nil {
					return nil, err
				}
			}
			dcID = target
			continue
		}

		if waitSecs, ok := IsFloodWait(resp.Err); ok {
			if g.FloodHandler != nil {
				if !g.FloodHandler(resp.Err) {
					return nil, merry.Wrap(resp.Err)
				}
				continue
			}
			wait := time.Duration(waitSecs) * time.Second
			if wait > g.FloodWaitCap {
				return nil, merry.Wrap(resp.Err)
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if IsAuthKeyUnregistered(resp.Err) {
			g.mu.Lock()
			old, ok := g.sessions[dcID]
			delete(g.sessions, dcID)
			g.mu.Unlock()
			if ok {
				old.MarkUnauthorized()
				if err := old.Close(); err != nil {
					g.log.Warnf("mtproto: closing unregistered session for DC %d: %v", dcID, err)
				}
			}
			_ = g.cfg.Store.DeleteKey(DcKey{DcID: dcID, IsTest: g.cfg.MainDC.Test})
			continue
		}

		return nil, resp.Err
	}
}

// ensureDcOptionKnown refreshes the cached DcOptions through the referring
// session's help.getConfig when target isn't already known, per spec.md
// §4.4.
func (g *ClientGroup) ensureDcOptionKnown(ctx context.Context, fromDC, target int32) error {
	g.mu.Lock()
	_, known := g.dcByID[target]
	g.mu.Unlock()
	if known {
		return nil
	}

	e, err := g.openSession(ctx, fromDC)
	if err != nil {
		return err
	}
	respCh, err := e.Send(tl.InvokeWithLayer{Layer: 0, Query: tl.HelpGetConfig{}}, true, true)
	if err != nil {
		return merry.Wrap(err)
	}
	var resp session.Response
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if resp.Err != nil {
		return resp.Err
	}
	cfg, ok := resp.Obj.(tl.Config)
	if !ok {
		return WrongRespError(resp.Obj)
	}
	g.applyConfig(cfg)
	return nil
}

func (g *ClientGroup) applyConfig(cfg tl.Config) {
	items := make([]DataCenter, 0, len(cfg.DcOptions))
	for _, o := range cfg.DcOptions {
		kind := DcRegular
		switch {
		case o.CdnDc:
			kind = DcCDN
		case o.MediaOnly:
			kind = DcMedia
		}
		items = append(items, DataCenter{
			ID:     o.ID,
			Kind:   kind,
			Addr:   joinHostPort(o.IPAddress, o.Port),
			IsIpv6: o.Ipv6,
		})
	}
	g.mu.Lock()
	g.dcOptions.Merge(items)
	for _, dc := range items {
		g.dcByID[dc.ID] = dc
	}
	g.mu.Unlock()
	_ = g.cfg.Store.SaveDcOptions(g.dcOptions)
}

func joinHostPort(ip string, port int32) string {
	return ip + ":" + itoa(port)
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// openSession returns the session for dcID, opening and handshaking a new
// connection (or restoring a persisted auth key) if none is open yet.
func (g *ClientGroup) openSession(ctx context.Context, dcID int32) (*session.Engine, error) {
	g.mu.Lock()
	if e, ok := g.sessions[dcID]; ok {
		if e.Phase() != session.Closed {
			g.mu.Unlock()
			return e, nil
		}
		delete(g.sessions, dcID)
	}
	dc, ok := g.dcByID[dcID]
	g.mu.Unlock()
	if !ok {
		return nil, merry.Errorf("mtproto: unknown DC %d", dcID)
	}

	e, err := g.dialAndHandshake(ctx, dc)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.sessions[dcID] = e
	g.mu.Unlock()

	go g.pumpUpdates(e)
	go g.watchReconnect(dcID, e)
	return e, nil
}

func (g *ClientGroup) pumpUpdates(e *session.Engine) {
	for obj := range e.Updates() {
		select {
		case g.updates <- obj:
		default:
			g.log.Warnf("mtproto: updates channel full, dropping message")
		}
	}
}

// watchReconnect waits for e to report a reconnect-eligible failure (spec.md
// §7: TransportError/ProtocolViolation) and, if the group isn't closing,
// collects its still-outstanding requests and hands them to
// reconnectAndResend on a freshly dialed replacement, the way openSession's
// own lazy redial does for the next caller but without losing the in-flight
// request that triggered the failure.
func (g *ClientGroup) watchReconnect(dcID int32, e *session.Engine) {
	select {
	case err, ok := <-e.Reconnect():
		if !ok || err == nil {
			return
		}
	case <-g.stopCh:
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if g.sessions[dcID] == e {
		delete(g.sessions, dcID)
	}
	g.mu.Unlock()

	pending := e.TakePending()
	g.reconnectAndResend(dcID, pending)
}

// reconnectAndResend implements spec.md §7's "Reconnect under
// connection_retry" policy: it redials dcID on cfg.ConnectionRetry's cadence
// until a session opens (or retries are exhausted, if bounded), then resends
// every pending request collected from the dead engine on the replacement.
func (g *ClientGroup) reconnectAndResend(dcID int32, pending map[int64]*session.PendingRequest) {
	retry := g.cfg.ConnectionRetry
	for attempt := 1; ; attempt++ {
		select {
		case <-g.stopCh:
			failAllPending(pending, session.ErrClosed.Here())
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		e, err := g.openSession(ctx, dcID)
		cancel()
		if err == nil {
			for _, p := range pending {
				e.Requeue(p)
			}
			return
		}
		g.log.Warnf("mtproto: reconnect attempt %d for DC %d failed: %v", attempt, dcID, err)

		if retry.MaxRetries > 0 && attempt >= retry.MaxRetries {
			failAllPending(pending, merry.Prependf(err, "mtproto: reconnect exhausted after %d attempts", attempt))
			return
		}

		select {
		case <-time.After(retry.Delay):
		case <-g.stopCh:
			failAllPending(pending, session.ErrClosed.Here())
			return
		}
	}
}

func failAllPending(pending map[int64]*session.PendingRequest, err error) {
	for _, p := range pending {
		p.Response <- session.Response{Err: err}
	}
}

func (g *ClientGroup) dialAndHandshake(ctx context.Context, dc DataCenter) (*session.Engine, error) {
	dial := func(ctx context.Context) (transport.Conn, error) {
		return transport.Dial(ctx, dc.Addr, transport.Intermediate, transport.DialOptions{})
	}

	storeKey := DcKey{DcID: dc.ID, IsTest: dc.Test}
	stored, err := g.cfg.Store.LoadKey(storeKey)
	if err == nil {
		conn, dialErr := dial(ctx)
		if dialErr != nil {
			return nil, merry.Wrap(dialErr)
		}
		state := session.NewState(stored.AuthKey, mtcrypto.AuthKeyID(stored.AuthKey), stored.ServerSalt, 0, randSessionID())
		return session.NewEngine(conn, state, g.decoder, g.log, g.cfg.GzipThreshold), nil
	}

	neg := &auth.Negotiator{
		Keys:         g.rsaKeys,
		PrimeChecker: g.primes,
		Backoff:      g.cfg.AuthRetry,
		CPUSem:       g.cpuSem,
		DC:           dc.ID,
	}
	result, err := neg.Handshake(ctx, dial)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	if err := g.cfg.Store.SaveKey(storeKey, StoredKey{AuthKey: result.AuthKey, ServerSalt: result.ServerSalt}); err != nil {
		g.log.Warnf("mtproto: failed to persist auth key for DC %d: %v", dc.ID, err)
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	state := session.NewState(result.AuthKey, result.AuthKeyID, result.ServerSalt, result.TimeOffset, randSessionID())
	return session.NewEngine(conn, state, g.decoder, g.log, g.cfg.GzipThreshold), nil
}

func randSessionID() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}
