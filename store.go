package mtproto

import (
	"os"
	"sync"

	"github.com/ansel1/merry/v2"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

// ErrNoSessionData is returned by a StoreLayout's LoadKey when nothing has
// been persisted yet for that key — the same "first run" signal the
// teacher's SessFileStore.Load raises.
var ErrNoSessionData = merry.New("mtproto: no session data")

// DcKey identifies one persisted auth-key slot.
type DcKey struct {
	DcID   int32
	IsTest bool
}

// StoredKey is the persisted half of SessionState: the blob store's value
// type (spec.md §6 "persisted state layout").
type StoredKey struct {
	AuthKey    []byte
	ServerSalt int64
}

// StoreLayout is the six-method contract spec.md §6 describes: load/save a
// single auth-key slot, load/save the whole DcOptions cache, and
// list/delete slots for housekeeping.
type StoreLayout interface {
	LoadKey(key DcKey) (StoredKey, error)
	SaveKey(key DcKey, v StoredKey) error
	LoadDcOptions() (*DcOptions, error)
	SaveDcOptions(o *DcOptions) error
	ListKeys() ([]DcKey, error)
	DeleteKey(key DcKey) error
}

// MemoryStore is an in-memory StoreLayout, the default for tests and for
// callers who don't want persistence (mirrors the teacher's SessNoopStore,
// generalized to actually hold state for the duration of the process).
type MemoryStore struct {
	mu      sync.Mutex
	keys    map[DcKey]StoredKey
	options *DcOptions
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[DcKey]StoredKey)}
}

func (m *MemoryStore) LoadKey(key DcKey) (StoredKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return StoredKey{}, ErrNoSessionData.Here()
	}
	return v, nil
}

func (m *MemoryStore) SaveKey(key DcKey, v StoredKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = v
	return nil
}

func (m *MemoryStore) LoadDcOptions() (*DcOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.options == nil {
		return nil, ErrNoSessionData.Here()
	}
	return m.options, nil
}

func (m *MemoryStore) SaveDcOptions(o *DcOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = o
	return nil
}

func (m *MemoryStore) ListKeys() ([]DcKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DcKey, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryStore) DeleteKey(key DcKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// FileStore persists every slot plus the DcOptions cache to one flat file,
// encoded with the tl package's EncodeBuf/DecodeBuf the way the teacher's
// SessFileStore persists a single SessionInfo.
type FileStore struct {
	Path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) readAll() (map[DcKey]StoredKey, *DcOptions, error) {
	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil, ErrNoSessionData.Here()
	}
	if err != nil {
		return nil, nil, merry.Wrap(err)
	}
	d := tl.NewDecodeBuf(raw)

	n := d.Int()
	keys := make(map[DcKey]StoredKey, n)
	for i := int32(0); i < n; i++ {
		k := DcKey{DcID: d.Int(), IsTest: d.Bool()}
		v := StoredKey{AuthKey: d.StringBytes(), ServerSalt: d.Long()}
		if d.Err() != nil {
			return nil, nil, merry.Wrap(d.Err())
		}
		keys[k] = v
	}

	haveOptions := d.Bool()
	var opts *DcOptions
	if haveOptions {
		m := d.Int()
		items := make([]DataCenter, 0, m)
		for i := int32(0); i < m; i++ {
			items = append(items, DataCenter{
				ID:     d.Int(),
				Kind:   DcKind(d.Int()),
				Addr:   d.String(),
				Test:   d.Bool(),
				IsIpv6: d.Bool(),
			})
		}
		opts = NewDcOptions(items...)
	}
	if d.Err() != nil {
		return nil, nil, merry.Wrap(d.Err())
	}
	return keys, opts, nil
}

func (s *FileStore) writeAll(keys map[DcKey]StoredKey, opts *DcOptions) error {
	b := tl.NewEncodeBuf(1024)
	b.Int(int32(len(keys)))
	for k, v := range keys {
		b.Int(k.DcID)
		b.Bool(k.IsTest)
		b.StringBytes(v.AuthKey)
		b.Long(v.ServerSalt)
	}
	b.Bool(opts != nil)
	if opts != nil {
		items := opts.All()
		b.Int(int32(len(items)))
		for _, dc := range items {
			b.Int(dc.ID)
			b.Int(int32(dc.Kind))
			b.String(dc.Addr)
			b.Bool(dc.Test)
			b.Bool(dc.IsIpv6)
		}
	}
	return os.WriteFile(s.Path, b.Bytes(), 0o600)
}

func (s *FileStore) LoadKey(key DcKey) (StoredKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, _, err := s.readAll()
	if err != nil {
		return StoredKey{}, err
	}
	v, ok := keys[key]
	if !ok {
		return StoredKey{}, ErrNoSessionData.Here()
	}
	return v, nil
}

func (s *FileStore) SaveKey(key DcKey, v StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, opts, err := s.readAll()
	if err != nil && !merry.Is(err, ErrNoSessionData) {
		return err
	}
	if keys == nil {
		keys = make(map[DcKey]StoredKey)
	}
	keys[key] = v
	return s.writeAll(keys, opts)
}

func (s *FileStore) LoadDcOptions() (*DcOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, opts, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if opts == nil {
		return nil, ErrNoSessionData.Here()
	}
	return opts, nil
}

func (s *FileStore) SaveDcOptions(o *DcOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, _, err := s.readAll()
	if err != nil && !merry.Is(err, ErrNoSessionData) {
		return err
	}
	return s.writeAll(keys, o)
}

func (s *FileStore) ListKeys() ([]DcKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, _, err := s.readAll()
	if err != nil {
		if merry.Is(err, ErrNoSessionData) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]DcKey, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *FileStore) DeleteKey(key DcKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, opts, err := s.readAll()
	if err != nil {
		if merry.Is(err, ErrNoSessionData) {
			return nil
		}
		return err
	}
	delete(keys, key)
	return s.writeAll(keys, opts)
}
