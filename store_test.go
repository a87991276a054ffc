package mtproto

import (
	"path/filepath"
	"testing"

	"github.com/ansel1/merry/v2"
)

func TestMemoryStoreKeyRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	key := DcKey{DcID: 2, IsTest: false}
	if _, err := s.LoadKey(key); !merry.Is(err, ErrNoSessionData) {
		t.Fatalf("expected ErrNoSessionData before any save, got %v", err)
	}
	want := StoredKey{AuthKey: []byte{1, 2, 3}, ServerSalt: 42}
	if err := s.SaveKey(key, want); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	got, err := s.LoadKey(key)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got.ServerSalt != want.ServerSalt || string(got.AuthKey) != string(want.AuthKey) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMemoryStoreDcOptionsRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.LoadDcOptions(); !merry.Is(err, ErrNoSessionData) {
		t.Fatalf("expected ErrNoSessionData before any save, got %v", err)
	}
	opts := NewDcOptions(DataCenter{ID: 1, Kind: DcRegular, Addr: "1.2.3.4:443"})
	if err := s.SaveDcOptions(opts); err != nil {
		t.Fatalf("SaveDcOptions: %v", err)
	}
	got, err := s.LoadDcOptions()
	if err != nil {
		t.Fatalf("LoadDcOptions: %v", err)
	}
	if len(got.All()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got.All()))
	}
}

func TestMemoryStoreListAndDeleteKeys(t *testing.T) {
	s := NewMemoryStore()
	s.SaveKey(DcKey{DcID: 1}, StoredKey{})
	s.SaveKey(DcKey{DcID: 2}, StoredKey{})
	keys, err := s.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if err := s.DeleteKey(DcKey{DcID: 1}); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	keys, _ = s.ListKeys()
	if len(keys) != 1 || keys[0].DcID != 2 {
		t.Fatalf("expected only DC 2 left, got %v", keys)
	}
}

func TestFileStoreKeyAndDcOptionsRoundTripAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	s1 := NewFileStore(path)

	key := DcKey{DcID: 5, IsTest: true}
	stored := StoredKey{AuthKey: []byte{9, 8, 7, 6}, ServerSalt: -123}
	if err := s1.SaveKey(key, stored); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	opts := NewDcOptions(
		DataCenter{ID: 1, Kind: DcRegular, Addr: "1.1.1.1:443", Test: true},
		DataCenter{ID: 2, Kind: DcMedia, Addr: "2.2.2.2:443", IsIpv6: true},
	)
	if err := s1.SaveDcOptions(opts); err != nil {
		t.Fatalf("SaveDcOptions: %v", err)
	}

	// A second handle reading the same file must see everything the first
	// one wrote, confirming the flat-file encoding round-trips.
	s2 := NewFileStore(path)
	gotKey, err := s2.LoadKey(key)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if gotKey.ServerSalt != stored.ServerSalt || string(gotKey.AuthKey) != string(stored.AuthKey) {
		t.Fatalf("got %+v, want %+v", gotKey, stored)
	}

	gotOpts, err := s2.LoadDcOptions()
	if err != nil {
		t.Fatalf("LoadDcOptions: %v", err)
	}
	if len(gotOpts.All()) != 2 {
		t.Fatalf("expected 2 dc options, got %d", len(gotOpts.All()))
	}
	media, ok := gotOpts.Find(DcMedia, 2)
	if !ok || !media.IsIpv6 {
		t.Fatalf("expected DC 2 media entry with IsIpv6=true, got %+v ok=%v", media, ok)
	}
}

func TestFileStoreLoadKeyMissingFileReturnsNoSessionData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.bin")
	s := NewFileStore(path)
	if _, err := s.LoadKey(DcKey{DcID: 1}); !merry.Is(err, ErrNoSessionData) {
		t.Fatalf("expected ErrNoSessionData for a missing file, got %v", err)
	}
}

func TestFileStoreDeleteKeyPreservesOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	s := NewFileStore(path)
	s.SaveKey(DcKey{DcID: 1}, StoredKey{ServerSalt: 1})
	s.SaveKey(DcKey{DcID: 2}, StoredKey{ServerSalt: 2})

	if err := s.DeleteKey(DcKey{DcID: 1}); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, err := s.LoadKey(DcKey{DcID: 1}); !merry.Is(err, ErrNoSessionData) {
		t.Fatalf("expected DC 1 to be gone, got err=%v", err)
	}
	got, err := s.LoadKey(DcKey{DcID: 2})
	if err != nil || got.ServerSalt != 2 {
		t.Fatalf("expected DC 2 to survive the delete, got %+v err=%v", got, err)
	}
}
