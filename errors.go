package mtproto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

// WrongRespError reports that a response had an unexpected shape for the
// request that produced it, the way the teacher's WrongRespError flags a
// TL object that didn't match any of the cases the caller expected.
func WrongRespError(obj tl.Object) error {
	return fmt.Errorf("mtproto: unexpected response type %T", obj)
}

// IsError reports whether err is (or wraps) a tl.RpcError whose
// message equals or is prefixed by code — mirrors the teacher's
// IsError(resp, "SESSION_PASSWORD_NEEDED") check.
func IsError(err error, code string) bool {
	rpcErr, ok := asRpcError(err)
	if !ok {
		return false
	}
	return rpcErr.Message == code || strings.HasPrefix(rpcErr.Message, code)
}

func asRpcError(err error) (tl.RpcError, bool) {
	if err == nil {
		return tl.RpcError{}, false
	}
	var rpcErr tl.RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return tl.RpcError{}, false
}

// IsFloodWait reports whether err is a FLOOD_WAIT_N rpc error, returning
// the wait duration in seconds.
func IsFloodWait(err error) (seconds int, ok bool) {
	rpcErr, is := asRpcError(err)
	if !is || rpcErr.Code != 420 {
		return 0, false
	}
	n, found := parseSuffixInt(rpcErr.Message, "FLOOD_WAIT_")
	if !found {
		return 0, false
	}
	return n, true
}

// IsMigrate reports whether err is one of the USER/PHONE/NETWORK/FILE
// _MIGRATE_N rpc errors spec.md §4.4 describes, returning the target DC id.
func IsMigrate(err error) (dcID int32, kind string, ok bool) {
	rpcErr, is := asRpcError(err)
	if !is || rpcErr.Code != 303 {
		return 0, "", false
	}
	for _, prefix := range []string{"USER_MIGRATE_", "PHONE_MIGRATE_", "NETWORK_MIGRATE_", "FILE_MIGRATE_"} {
		if n, found := parseSuffixInt(rpcErr.Message, prefix); found {
			return int32(n), strings.TrimSuffix(prefix, "_MIGRATE_"), true
		}
	}
	return 0, "", false
}

// IsAuthKeyUnregistered reports whether err is the AUTH_KEY_UNREGISTERED
// rpc error (spec.md §7): the session must drop its key and re-handshake.
func IsAuthKeyUnregistered(err error) bool {
	rpcErr, is := asRpcError(err)
	return is && rpcErr.Code == 401 && rpcErr.Message == "AUTH_KEY_UNREGISTERED"
}

func parseSuffixInt(msg, prefix string) (int, bool) {
	if !strings.HasPrefix(msg, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(msg, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
