package mtproto

// DcKind distinguishes the three categories of data center spec.md §3
// enumerates.
type DcKind int

const (
	DcRegular DcKind = iota
	DcMedia
	DcCDN
)

// DataCenter is spec.md §3's immutable tuple: (id, type, address, test).
type DataCenter struct {
	ID      int32
	Kind    DcKind
	Addr    string // host:port
	Test    bool
	IsIpv6  bool
}

// DcOptions is an ordered collection of DataCenters with a lookup by
// (kind, id); Merge updates it in place.
type DcOptions struct {
	items []DataCenter
}

func NewDcOptions(items ...DataCenter) *DcOptions {
	return &DcOptions{items: append([]DataCenter(nil), items...)}
}

// Find returns the first DataCenter matching kind and id.
func (o *DcOptions) Find(kind DcKind, id int32) (DataCenter, bool) {
	for _, dc := range o.items {
		if dc.Kind == kind && dc.ID == id {
			return dc, true
		}
	}
	return DataCenter{}, false
}

// All returns every known DataCenter.
func (o *DcOptions) All() []DataCenter {
	return append([]DataCenter(nil), o.items...)
}

// Merge folds newly-learned options (e.g. from help.getConfig) into the
// set, replacing any existing entry with the same (kind, id).
func (o *DcOptions) Merge(items []DataCenter) {
	for _, n := range items {
		replaced := false
		for i, existing := range o.items {
			if existing.Kind == n.Kind && existing.ID == n.ID {
				o.items[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			o.items = append(o.items, n)
		}
	}
}

// DefaultTestDcOptions returns Telegram's well-known test-environment
// entry points, useful for scripted tests and as a bootstrap seed before
// the first help.getConfig response arrives.
func DefaultTestDcOptions() *DcOptions {
	return NewDcOptions(
		DataCenter{ID: 1, Kind: DcRegular, Addr: "149.154.175.10:80", Test: true},
		DataCenter{ID: 2, Kind: DcRegular, Addr: "149.154.167.40:80", Test: true},
		DataCenter{ID: 3, Kind: DcRegular, Addr: "149.154.175.117:80", Test: true},
	)
}
