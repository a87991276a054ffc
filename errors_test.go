package mtproto

import (
	"errors"
	"testing"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

func TestIsErrorMatchesExactAndPrefixed(t *testing.T) {
	err := tl.RpcError{Code: 401, Message: "SESSION_PASSWORD_NEEDED"}
	if !IsError(err, "SESSION_PASSWORD_NEEDED") {
		t.Fatal("expected an exact match")
	}
	if !IsError(err, "SESSION_PASSWORD") {
		t.Fatal("expected a prefix match")
	}
	if IsError(err, "PHONE_CODE_INVALID") {
		t.Fatal("did not expect a match against an unrelated code")
	}
	if IsError(nil, "SESSION_PASSWORD_NEEDED") {
		t.Fatal("nil error must never match")
	}
	if IsError(errors.New("not an rpc error"), "SESSION_PASSWORD_NEEDED") {
		t.Fatal("a non-RpcError must never match")
	}
}

func TestIsFloodWaitExtractsSeconds(t *testing.T) {
	seconds, ok := IsFloodWait(tl.RpcError{Code: 420, Message: "FLOOD_WAIT_17"})
	if !ok || seconds != 17 {
		t.Fatalf("expected (17, true), got (%d, %v)", seconds, ok)
	}
	if _, ok := IsFloodWait(tl.RpcError{Code: 420, Message: "SOMETHING_ELSE"}); ok {
		t.Fatal("expected false for a 420 with an unrecognized message")
	}
	if _, ok := IsFloodWait(tl.RpcError{Code: 400, Message: "FLOOD_WAIT_17"}); ok {
		t.Fatal("expected false when the code isn't 420")
	}
}

func TestIsMigrateExtractsDCAndKind(t *testing.T) {
	dcID, kind, ok := IsMigrate(tl.RpcError{Code: 303, Message: "PHONE_MIGRATE_4"})
	if !ok || dcID != 4 || kind != "PHONE" {
		t.Fatalf("got (%d, %q, %v)", dcID, kind, ok)
	}
	_, _, ok = IsMigrate(tl.RpcError{Code: 303, Message: "UNKNOWN_MIGRATE_4"})
	if ok {
		t.Fatal("expected false for an unrecognized migrate prefix")
	}
	_, _, ok = IsMigrate(tl.RpcError{Code: 400, Message: "PHONE_MIGRATE_4"})
	if ok {
		t.Fatal("expected false when the code isn't 303")
	}
}

func TestIsAuthKeyUnregistered(t *testing.T) {
	if !IsAuthKeyUnregistered(tl.RpcError{Code: 401, Message: "AUTH_KEY_UNREGISTERED"}) {
		t.Fatal("expected a match")
	}
	if IsAuthKeyUnregistered(tl.RpcError{Code: 401, Message: "SESSION_REVOKED"}) {
		t.Fatal("expected false for a different 401 message")
	}
}

func TestWrongRespErrorNamesTheType(t *testing.T) {
	err := WrongRespError(tl.Ping{PingID: 1})
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}
