package tl

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Message is one entry of a msg_container: an independently msg-id/seq-no
// tagged inner message.
type Message struct {
	MsgID int64
	SeqNo int32
	Body  Object
}

type MsgContainer struct {
	Items []Message
}

func (MsgContainer) CRC() uint32 { return CRCMsgContainer }

func (c MsgContainer) Encode(b *EncodeBuf) {
	b.Int(int32(len(c.Items)))
	for _, it := range c.Items {
		b.Long(it.MsgID)
		b.Int(it.SeqNo)
		inner := NewEncodeBuf(64)
		inner.Object(it.Body)
		b.Int(int32(len(inner.Bytes())))
		b.Bytes_(inner.Bytes())
	}
}

func decodeMsgContainer(d *DecodeBuf, dec Decoder) (MsgContainer, error) {
	n := d.Int()
	if d.err != nil || n < 0 {
		return MsgContainer{}, fmt.Errorf("tl: bad msg_container size")
	}
	items := make([]Message, 0, n)
	for i := int32(0); i < n; i++ {
		msgID := d.Long()
		seqNo := d.Int()
		bodyLen := d.Int()
		if d.err != nil || bodyLen < 0 {
			return MsgContainer{}, fmt.Errorf("tl: bad msg_container entry")
		}
		bodyBytes := d.Bytes(int(bodyLen))
		if d.err != nil {
			return MsgContainer{}, d.err
		}
		inner := NewDecodeBuf(bodyBytes)
		obj, err := inner.Object(dec)
		if err != nil {
			return MsgContainer{}, fmt.Errorf("tl: msg_container item: %w", err)
		}
		items = append(items, Message{MsgID: msgID, SeqNo: seqNo, Body: obj})
	}
	return MsgContainer{Items: items}, nil
}

// MsgCopy re-sends an earlier message verbatim under a new envelope msg_id,
// carrying the original msg_id/seq_no/body so the session can dispatch it as
// if it had arrived the first time (spec.md §4.3's "unwrap ... MessageCopy
// recursively").
type MsgCopy struct {
	OrigMsgID int64
	OrigSeqNo int32
	OrigBody  Object
}

func (MsgCopy) CRC() uint32 { return CRCMsgCopy }

func (m MsgCopy) Encode(b *EncodeBuf) {
	b.Long(m.OrigMsgID)
	b.Int(m.OrigSeqNo)
	inner := NewEncodeBuf(64)
	inner.Object(m.OrigBody)
	b.Int(int32(len(inner.Bytes())))
	b.Bytes_(inner.Bytes())
}

func decodeMsgCopy(d *DecodeBuf, dec Decoder) (MsgCopy, error) {
	msgID := d.Long()
	seqNo := d.Int()
	bodyLen := d.Int()
	if d.err != nil || bodyLen < 0 {
		return MsgCopy{}, fmt.Errorf("tl: bad msg_copy")
	}
	bodyBytes := d.Bytes(int(bodyLen))
	if d.err != nil {
		return MsgCopy{}, d.err
	}
	inner := NewDecodeBuf(bodyBytes)
	obj, err := inner.Object(dec)
	if err != nil {
		return MsgCopy{}, fmt.Errorf("tl: msg_copy body: %w", err)
	}
	return MsgCopy{OrigMsgID: msgID, OrigSeqNo: seqNo, OrigBody: obj}, nil
}

type RpcResult struct {
	ReqMsgID int64
	Obj      Object
}

func (RpcResult) CRC() uint32 { return CRCRpcResult }

func (r RpcResult) Encode(b *EncodeBuf) {
	b.Long(r.ReqMsgID)
	b.Object(r.Obj)
}

func decodeRpcResult(d *DecodeBuf, dec Decoder) (RpcResult, error) {
	reqID := d.Long()
	if d.err != nil {
		return RpcResult{}, d.err
	}
	obj, err := d.Object(dec)
	if err != nil {
		return RpcResult{}, err
	}
	return RpcResult{ReqMsgID: reqID, Obj: obj}, nil
}

// RpcError is both a TL object and a Go error: the common case of "the
// caller only wants to know whether the RPC failed, and if so why".
type RpcError struct {
	Code    int32
	Message string
}

func (RpcError) CRC() uint32 { return CRCRpcError }

func (e RpcError) Encode(b *EncodeBuf) {
	b.Int(e.Code)
	b.String(e.Message)
}

func (e RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func decodeRpcError(d *DecodeBuf) (RpcError, error) {
	code := d.Int()
	msg := d.String()
	if d.err != nil {
		return RpcError{}, d.err
	}
	return RpcError{Code: code, Message: msg}, nil
}

// GzipPacked wraps a gzip-compressed inner object; it is transparently
// unwrapped by DecodeBuf.Object and applied on encode when a body exceeds
// the caller's gzip threshold.
type GzipPacked struct {
	Obj Object
}

func (GzipPacked) CRC() uint32 { return CRCGzipPacked }

func (g GzipPacked) Encode(b *EncodeBuf) {
	inner := NewEncodeBuf(256)
	inner.Object(g.Obj)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(inner.Bytes())
	_ = zw.Close()
	b.StringBytes(buf.Bytes())
}

func decodeGzipPacked(d *DecodeBuf, dec Decoder) (Object, error) {
	packed := d.StringBytes()
	if d.err != nil {
		return nil, d.err
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("tl: gzip_packed: %w", err)
	}
	inner := NewDecodeBuf(raw)
	return inner.Object(dec)
}

type MsgsAck struct {
	MsgIDs []int64
}

func (MsgsAck) CRC() uint32 { return CRCMsgsAck }

func (a MsgsAck) Encode(b *EncodeBuf) {
	VectorEncode(b, a.MsgIDs, func(e *EncodeBuf, id int64) { e.Long(id) })
}

func decodeMsgsAck(d *DecodeBuf) (MsgsAck, error) {
	ids := d.VectorLong()
	if d.err != nil {
		return MsgsAck{}, d.err
	}
	return MsgsAck{MsgIDs: ids}, nil
}

type BadServerSalt struct {
	BadMsgID      int64
	BadMsgSeqNo   int32
	ErrorCode     int32
	NewServerSalt int64
}

func (BadServerSalt) CRC() uint32 { return CRCBadServerSalt }

func (b2 BadServerSalt) Encode(b *EncodeBuf) {
	b.Long(b2.BadMsgID)
	b.Int(b2.BadMsgSeqNo)
	b.Int(b2.ErrorCode)
	b.Long(b2.NewServerSalt)
}

func decodeBadServerSalt(d *DecodeBuf) (BadServerSalt, error) {
	r := BadServerSalt{
		BadMsgID:    d.Long(),
		BadMsgSeqNo: d.Int(),
		ErrorCode:   d.Int(),
	}
	r.NewServerSalt = d.Long()
	if d.err != nil {
		return BadServerSalt{}, d.err
	}
	return r, nil
}

type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (BadMsgNotification) CRC() uint32 { return CRCBadMsgNotification }

func (b2 BadMsgNotification) Encode(b *EncodeBuf) {
	b.Long(b2.BadMsgID)
	b.Int(b2.BadMsgSeqNo)
	b.Int(b2.ErrorCode)
}

func decodeBadMsgNotification(d *DecodeBuf) (BadMsgNotification, error) {
	r := BadMsgNotification{
		BadMsgID:    d.Long(),
		BadMsgSeqNo: d.Int(),
		ErrorCode:   d.Int(),
	}
	if d.err != nil {
		return BadMsgNotification{}, d.err
	}
	return r, nil
}

type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (NewSessionCreated) CRC() uint32 { return CRCNewSessionCreated }

func (n NewSessionCreated) Encode(b *EncodeBuf) {
	b.Long(n.FirstMsgID)
	b.Long(n.UniqueID)
	b.Long(n.ServerSalt)
}

func decodeNewSessionCreated(d *DecodeBuf) (NewSessionCreated, error) {
	r := NewSessionCreated{FirstMsgID: d.Long(), UniqueID: d.Long(), ServerSalt: d.Long()}
	if d.err != nil {
		return NewSessionCreated{}, d.err
	}
	return r, nil
}

type Ping struct{ PingID int64 }

func (Ping) CRC() uint32         { return CRCPing }
func (p Ping) Encode(b *EncodeBuf) { b.Long(p.PingID) }

func decodePing(d *DecodeBuf) (Ping, error) {
	p := Ping{PingID: d.Long()}
	if d.err != nil {
		return Ping{}, d.err
	}
	return p, nil
}

type Pong struct {
	MsgID  int64
	PingID int64
}

func (Pong) CRC() uint32 { return CRCPong }
func (p Pong) Encode(b *EncodeBuf) {
	b.Long(p.MsgID)
	b.Long(p.PingID)
}

func decodePong(d *DecodeBuf) (Pong, error) {
	p := Pong{MsgID: d.Long(), PingID: d.Long()}
	if d.err != nil {
		return Pong{}, d.err
	}
	return p, nil
}

type PingDelayDisconnect struct {
	PingID          int64
	DisconnectDelay int32
}

func (PingDelayDisconnect) CRC() uint32 { return CRCPingDelayDisconnect }
func (p PingDelayDisconnect) Encode(b *EncodeBuf) {
	b.Long(p.PingID)
	b.Int(p.DisconnectDelay)
}

type MsgsStateReq struct{ MsgIDs []int64 }

func (MsgsStateReq) CRC() uint32 { return CRCMsgsStateReq }
func (r MsgsStateReq) Encode(b *EncodeBuf) {
	VectorEncode(b, r.MsgIDs, func(e *EncodeBuf, id int64) { e.Long(id) })
}

type MsgsStateInfo struct {
	ReqMsgID int64
	Info     []byte
}

func (MsgsStateInfo) CRC() uint32 { return CRCMsgsStateInfo }
func (r MsgsStateInfo) Encode(b *EncodeBuf) {
	b.Long(r.ReqMsgID)
	b.StringBytes(r.Info)
}

func decodeMsgsStateInfo(d *DecodeBuf) (MsgsStateInfo, error) {
	r := MsgsStateInfo{ReqMsgID: d.Long(), Info: d.StringBytes()}
	if d.err != nil {
		return MsgsStateInfo{}, d.err
	}
	return r, nil
}

type MsgResendReq struct{ MsgIDs []int64 }

func (MsgResendReq) CRC() uint32 { return CRCMsgResendReq }
func (r MsgResendReq) Encode(b *EncodeBuf) {
	VectorEncode(b, r.MsgIDs, func(e *EncodeBuf, id int64) { e.Long(id) })
}

// decodeEnvelope dispatches the envelope-level constructors this package
// owns outright; everything else is handed to the caller-supplied Decoder.
func decodeEnvelope(crc uint32, d *DecodeBuf, dec Decoder) (Object, bool) {
	switch crc {
	case CRCMsgContainer:
		obj, err := decodeMsgContainer(d, dec)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCMsgCopy:
		obj, err := decodeMsgCopy(d, dec)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCRpcResult:
		obj, err := decodeRpcResult(d, dec)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCRpcError:
		obj, err := decodeRpcError(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCGzipPacked:
		obj, err := decodeGzipPacked(d, dec)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCMsgsAck:
		obj, err := decodeMsgsAck(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCBadServerSalt:
		obj, err := decodeBadServerSalt(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCBadMsgNotification:
		obj, err := decodeBadMsgNotification(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCNewSessionCreated:
		obj, err := decodeNewSessionCreated(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCPing:
		obj, err := decodePing(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCPong:
		obj, err := decodePong(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCMsgsStateInfo:
		obj, err := decodeMsgsStateInfo(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	case CRCConfig:
		obj, err := decodeConfigBody(d)
		if err != nil {
			d.fail(err)
			return nil, true
		}
		return obj, true
	default:
		return nil, false
	}
}
