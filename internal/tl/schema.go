package tl

import "fmt"

// The types in this file are read/written directly by the handshake
// negotiator and the router's help.getConfig bootstrap: at each step the
// caller knows exactly which constructor to expect, so these do not need to
// flow through the generic Decoder dispatch in buf.go.

type ReqPQMulti struct{ Nonce [16]byte }

func (ReqPQMulti) CRC() uint32 { return CRCReqPQMulti }
func (r ReqPQMulti) Encode(b *EncodeBuf) { b.Int128(r.Nonce) }

type ResPQ struct {
	Nonce        [16]byte
	ServerNonce  [16]byte
	Pq           []byte
	Fingerprints []int64
}

func DecodeResPQ(d *DecodeBuf) (ResPQ, error) {
	crc := d.UInt()
	if d.err != nil {
		return ResPQ{}, d.err
	}
	if crc != CRCResPQ {
		return ResPQ{}, fmt.Errorf("tl: expected resPQ, got 0x%08x", crc)
	}
	r := ResPQ{Nonce: d.Int128(), ServerNonce: d.Int128(), Pq: d.StringBytes()}
	r.Fingerprints = d.VectorLong()
	if d.err != nil {
		return ResPQ{}, d.err
	}
	return r, nil
}

// PQInnerDataDc is the inner payload RSA-encrypted in step 4 of the
// handshake (spec.md §4.2). Temporary-key variants set Temp=true and encode
// the extra expires_in field per PQInnerDataTempDc.
type PQInnerDataDc struct {
	Pq          []byte
	P, Q        []byte
	Nonce       [16]byte
	ServerNonce [16]byte
	NewNonce    [32]byte
	DC          int32
	Temp        bool
	ExpiresIn   int32
}

func (p PQInnerDataDc) CRC() uint32 {
	if p.Temp {
		return CRCPQInnerDataTempDc
	}
	return CRCPQInnerDataDc
}

func (p PQInnerDataDc) Encode(b *EncodeBuf) {
	b.StringBytes(p.Pq)
	b.StringBytes(p.P)
	b.StringBytes(p.Q)
	b.Int128(p.Nonce)
	b.Int128(p.ServerNonce)
	b.Int256(p.NewNonce)
	b.Int(p.DC)
	if p.Temp {
		b.Int(p.ExpiresIn)
	}
}

type ServerDHParamsFail struct {
	Nonce, ServerNonce [16]byte
	NewNonceHash       [16]byte
}

type ServerDHParamsOk struct {
	Nonce, ServerNonce [16]byte
	EncryptedAnswer    []byte
}

// ServerDHParams is either *ServerDHParamsOk or *ServerDHParamsFail.
func DecodeServerDHParams(d *DecodeBuf) (any, error) {
	crc := d.UInt()
	if d.err != nil {
		return nil, d.err
	}
	switch crc {
	case CRCServerDHParamsOk:
		r := ServerDHParamsOk{Nonce: d.Int128(), ServerNonce: d.Int128(), EncryptedAnswer: d.StringBytes()}
		if d.err != nil {
			return nil, d.err
		}
		return &r, nil
	case CRCServerDHParamsFail:
		r := ServerDHParamsFail{Nonce: d.Int128(), ServerNonce: d.Int128(), NewNonceHash: d.Int128()}
		if d.err != nil {
			return nil, d.err
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("tl: unexpected server_DH_params constructor 0x%08x", crc)
	}
}

type ServerDHInnerData struct {
	Nonce, ServerNonce [16]byte
	G                  int32
	DhPrime            []byte
	GA                 []byte
	ServerTime         int32
}

func DecodeServerDHInnerData(d *DecodeBuf) (ServerDHInnerData, error) {
	crc := d.UInt()
	if d.err != nil {
		return ServerDHInnerData{}, d.err
	}
	if crc != CRCServerDHInnerData {
		return ServerDHInnerData{}, fmt.Errorf("tl: expected server_DH_inner_data, got 0x%08x", crc)
	}
	r := ServerDHInnerData{Nonce: d.Int128(), ServerNonce: d.Int128(), G: d.Int()}
	r.DhPrime = d.StringBytes()
	r.GA = d.StringBytes()
	r.ServerTime = d.Int()
	if d.err != nil {
		return ServerDHInnerData{}, d.err
	}
	return r, nil
}

type ClientDHInnerData struct {
	Nonce, ServerNonce [16]byte
	RetryID            int64
	GB                 []byte
}

func (ClientDHInnerData) CRC() uint32 { return CRCClientDHInnerData }
func (c ClientDHInnerData) Encode(b *EncodeBuf) {
	b.Int128(c.Nonce)
	b.Int128(c.ServerNonce)
	b.Long(c.RetryID)
	b.StringBytes(c.GB)
}

type ReqDHParams struct {
	Nonce, ServerNonce   [16]byte
	P, Q                 []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (ReqDHParams) CRC() uint32 { return CRCReqDHParams }
func (r ReqDHParams) Encode(b *EncodeBuf) {
	b.Int128(r.Nonce)
	b.Int128(r.ServerNonce)
	b.StringBytes(r.P)
	b.StringBytes(r.Q)
	b.Long(r.PublicKeyFingerprint)
	b.StringBytes(r.EncryptedData)
}

type SetClientDHParams struct {
	Nonce, ServerNonce [16]byte
	EncryptedData      []byte
}

func (SetClientDHParams) CRC() uint32 { return CRCSetClientDHParams }
func (s SetClientDHParams) Encode(b *EncodeBuf) {
	b.Int128(s.Nonce)
	b.Int128(s.ServerNonce)
	b.StringBytes(s.EncryptedData)
}

type DHGenOk struct{ Nonce, ServerNonce, NewNonceHash1 [16]byte }
type DHGenRetry struct{ Nonce, ServerNonce, NewNonceHash2 [16]byte }
type DHGenFail struct{ Nonce, ServerNonce, NewNonceHash3 [16]byte }

// DHGenResult is one of *DHGenOk, *DHGenRetry, *DHGenFail.
func DecodeDHGenResult(d *DecodeBuf) (any, error) {
	crc := d.UInt()
	if d.err != nil {
		return nil, d.err
	}
	switch crc {
	case CRCDHGenOk:
		r := DHGenOk{Nonce: d.Int128(), ServerNonce: d.Int128(), NewNonceHash1: d.Int128()}
		if d.err != nil {
			return nil, d.err
		}
		return &r, nil
	case CRCDHGenRetry:
		r := DHGenRetry{Nonce: d.Int128(), ServerNonce: d.Int128(), NewNonceHash2: d.Int128()}
		if d.err != nil {
			return nil, d.err
		}
		return &r, nil
	case CRCDHGenFail:
		r := DHGenFail{Nonce: d.Int128(), ServerNonce: d.Int128(), NewNonceHash3: d.Int128()}
		if d.err != nil {
			return nil, d.err
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("tl: unexpected dh_gen_result constructor 0x%08x", crc)
	}
}

// --- help.getConfig / config / dcOption -----------------------------------

type InvokeWithLayer struct {
	Layer int32
	Query Object
}

func (InvokeWithLayer) CRC() uint32 { return CRCInvokeWithLayer }
func (i InvokeWithLayer) Encode(b *EncodeBuf) {
	b.Int(i.Layer)
	b.Object(i.Query)
}

type InitConnection struct {
	ApiID          int32
	DeviceModel    string
	SystemVersion  string
	AppVersion     string
	SystemLangCode string
	LangPack       string
	LangCode       string
	Query          Object
}

func (InitConnection) CRC() uint32 { return CRCInitConnection }
func (c InitConnection) Encode(b *EncodeBuf) {
	b.Int(0) // flags: none of the optional proxy/params fields are populated
	b.Int(c.ApiID)
	b.String(c.DeviceModel)
	b.String(c.SystemVersion)
	b.String(c.AppVersion)
	b.String(c.SystemLangCode)
	b.String(c.LangPack)
	b.String(c.LangCode)
	b.Object(c.Query)
}

type HelpGetConfig struct{}

func (HelpGetConfig) CRC() uint32          { return CRCHelpGetConfig }
func (HelpGetConfig) Encode(b *EncodeBuf) {}

type DcOption struct {
	Ipv6      bool
	MediaOnly bool
	CdnDc     bool
	ID        int32
	IPAddress string
	Port      int32
}

func decodeDcOption(d *DecodeBuf) (DcOption, error) {
	crc := d.UInt()
	if d.err != nil {
		return DcOption{}, d.err
	}
	if crc != CRCDcOption {
		return DcOption{}, fmt.Errorf("tl: expected dcOption, got 0x%08x", crc)
	}
	flags := d.Int()
	o := DcOption{
		Ipv6:      flags&(1<<0) != 0,
		MediaOnly: flags&(1<<1) != 0,
		CdnDc:     flags&(1<<3) != 0,
	}
	o.ID = d.Int()
	o.IPAddress = d.String()
	o.Port = d.Int()
	if flags&(1<<10) != 0 {
		d.StringBytes() // secret, unused by this core
	}
	if d.err != nil {
		return DcOption{}, d.err
	}
	return o, nil
}

func (o DcOption) encode(b *EncodeBuf) {
	var flags int32
	if o.Ipv6 {
		flags |= 1 << 0
	}
	if o.MediaOnly {
		flags |= 1 << 1
	}
	if o.CdnDc {
		flags |= 1 << 3
	}
	b.UInt(CRCDcOption)
	b.Int(flags)
	b.Int(o.ID)
	b.String(o.IPAddress)
	b.Int(o.Port)
}

// Config is a deliberately partial decode of the real config#... response:
// this core only needs this_dc and dc_options (spec.md scenario S1); the
// remaining ~30 flag-gated fields belong to the high-level entity layer
// which is out of scope, so they are skipped rather than modeled field by
// field.
type Config struct {
	ThisDc    int32
	DcOptions []DcOption
}

func (Config) CRC() uint32 { return CRCConfig }

// Encode re-serializes only the fields this core models (ThisDc,
// DcOptions); this type is receive-only in practice (the client never sends
// a config#... back to the server) so the flag-gated fields this core never
// captured are written as zero.
func (c Config) Encode(b *EncodeBuf) {
	b.Int(0)     // flags
	b.Int(0)     // date
	b.Int(0)     // expires
	b.Bool(false) // test_mode
	b.Int(c.ThisDc)
	VectorEncode(b, c.DcOptions, func(e *EncodeBuf, o DcOption) {
		o.encode(e)
	})
}

// DecodeConfig reads a boxed config#... value, including its own leading
// CRC; used by callers handed a raw buffer that hasn't been through
// Object()'s dispatch yet. decodeConfigBody (wired into decodeEnvelope) is
// what the generic inbound path uses instead, since the CRC there has
// already been consumed by Object.
func DecodeConfig(d *DecodeBuf) (Config, error) {
	crc := d.UInt()
	if d.err != nil {
		return Config{}, d.err
	}
	if crc != CRCConfig {
		return Config{}, fmt.Errorf("tl: expected config, got 0x%08x", crc)
	}
	return decodeConfigBody(d)
}

func decodeConfigBody(d *DecodeBuf) (Config, error) {
	d.Int()  // flags
	d.Int()  // date
	d.Int()  // expires
	d.Bool() // test_mode
	thisDc := d.Int()
	n := d.UInt()
	if d.err != nil {
		return Config{}, d.err
	}
	if n != CRCVector {
		return Config{}, fmt.Errorf("tl: expected vector<dcOption>, got 0x%08x", n)
	}
	size := d.Int()
	if d.err != nil || size < 0 {
		return Config{}, fmt.Errorf("tl: bad dc_options size")
	}
	opts := make([]DcOption, 0, size)
	for i := int32(0); i < size; i++ {
		o, err := decodeDcOption(d)
		if err != nil {
			return Config{}, err
		}
		opts = append(opts, o)
	}
	// Remaining fields (chat_size_max, timeouts, language pack info, ...)
	// are not modeled; the rest of the buffer is left unparsed by design.
	return Config{ThisDc: thisDc, DcOptions: opts}, nil
}
