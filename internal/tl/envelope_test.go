package tl

import "testing"

// pingOnlyDecoder is a minimal Decoder stand-in for a caller's generated
// schema: it only ever needs to hand back envelope-owned constructors in
// these tests, so any crc it's actually asked to resolve is a test bug.
type pingOnlyDecoder struct{}

func (pingOnlyDecoder) DecodeByCRC(crc uint32, b *DecodeBuf) (Object, error) {
	panic("unexpected DecodeByCRC call for crc " + string(rune(crc)))
}

func TestMsgContainerRoundTrip(t *testing.T) {
	c := MsgContainer{Items: []Message{
		{MsgID: 11, SeqNo: 1, Body: Ping{PingID: 99}},
		{MsgID: 13, SeqNo: 3, Body: MsgsAck{MsgIDs: []int64{1, 3, 5}}},
	}}
	e := NewEncodeBuf(256)
	e.Object(c)

	d := NewDecodeBuf(e.Bytes())
	obj, err := d.Object(pingOnlyDecoder{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := obj.(MsgContainer)
	if !ok {
		t.Fatalf("expected MsgContainer, got %T", obj)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	ping, ok := got.Items[0].Body.(Ping)
	if !ok || ping.PingID != 99 {
		t.Fatalf("item 0: got %#v", got.Items[0].Body)
	}
	ack, ok := got.Items[1].Body.(MsgsAck)
	if !ok || len(ack.MsgIDs) != 3 {
		t.Fatalf("item 1: got %#v", got.Items[1].Body)
	}
}

func TestRpcResultAndRpcErrorRoundTrip(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Object(RpcResult{ReqMsgID: 42, Obj: RpcError{Code: 420, Message: "FLOOD_WAIT_5"}})

	d := NewDecodeBuf(e.Bytes())
	obj, err := d.Object(pingOnlyDecoder{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res, ok := obj.(RpcResult)
	if !ok {
		t.Fatalf("expected RpcResult, got %T", obj)
	}
	if res.ReqMsgID != 42 {
		t.Fatalf("ReqMsgID: got %d", res.ReqMsgID)
	}
	rpcErr, ok := res.Obj.(RpcError)
	if !ok {
		t.Fatalf("expected inner RpcError, got %T", res.Obj)
	}
	if rpcErr.Code != 420 || rpcErr.Message != "FLOOD_WAIT_5" {
		t.Fatalf("unexpected RpcError: %#v", rpcErr)
	}
	if rpcErr.Error() == "" {
		t.Fatal("RpcError.Error() must not be empty")
	}
}

func TestGzipPackedTransparentInflate(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Object(GzipPacked{Obj: Pong{MsgID: 7, PingID: 8}})

	d := NewDecodeBuf(e.Bytes())
	obj, err := d.Object(pingOnlyDecoder{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pong, ok := obj.(Pong)
	if !ok {
		t.Fatalf("expected gzip_packed to transparently inflate to Pong, got %T", obj)
	}
	if pong.MsgID != 7 || pong.PingID != 8 {
		t.Fatalf("unexpected Pong: %#v", pong)
	}
}

func TestMsgCopyRoundTrip(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Object(MsgCopy{OrigMsgID: 101, OrigSeqNo: 5, OrigBody: Ping{PingID: 55}})

	d := NewDecodeBuf(e.Bytes())
	obj, err := d.Object(pingOnlyDecoder{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mc, ok := obj.(MsgCopy)
	if !ok {
		t.Fatalf("expected MsgCopy, got %T", obj)
	}
	if mc.OrigMsgID != 101 || mc.OrigSeqNo != 5 {
		t.Fatalf("unexpected MsgCopy envelope fields: %#v", mc)
	}
	ping, ok := mc.OrigBody.(Ping)
	if !ok || ping.PingID != 55 {
		t.Fatalf("unexpected MsgCopy body: %#v", mc.OrigBody)
	}
}

func TestConfigRoundTripThroughEnvelope(t *testing.T) {
	cfg := Config{
		ThisDc: 2,
		DcOptions: []DcOption{
			{ID: 1, IPAddress: "1.2.3.4", Port: 443},
			{ID: 2, IPAddress: "5.6.7.8", Port: 443, MediaOnly: true},
		},
	}
	e := NewEncodeBuf(128)
	e.Object(cfg)

	d := NewDecodeBuf(e.Bytes())
	obj, err := d.Object(pingOnlyDecoder{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := obj.(Config)
	if !ok {
		t.Fatalf("expected Config, got %T", obj)
	}
	if got.ThisDc != 2 {
		t.Fatalf("ThisDc: got %d", got.ThisDc)
	}
	if len(got.DcOptions) != 2 {
		t.Fatalf("expected 2 dc options, got %d", len(got.DcOptions))
	}
	if !got.DcOptions[1].MediaOnly {
		t.Fatal("expected second dc option to round-trip MediaOnly=true")
	}
}

func TestDecodeConfigDirectReadsOwnCRC(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Object(Config{ThisDc: 5})

	got, err := DecodeConfig(NewDecodeBuf(e.Bytes()))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if got.ThisDc != 5 {
		t.Fatalf("ThisDc: got %d", got.ThisDc)
	}
}

func TestDecodeConfigRejectsWrongCRC(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Object(Ping{PingID: 1})

	_, err := DecodeConfig(NewDecodeBuf(e.Bytes()))
	if err == nil {
		t.Fatal("expected an error decoding a non-config value as Config")
	}
}
