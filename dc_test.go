package mtproto

import "testing"

func TestDcOptionsFindMatchesKindAndID(t *testing.T) {
	o := NewDcOptions(
		DataCenter{ID: 1, Kind: DcRegular, Addr: "1.1.1.1:443"},
		DataCenter{ID: 1, Kind: DcMedia, Addr: "1.1.1.2:443"},
	)
	dc, ok := o.Find(DcMedia, 1)
	if !ok {
		t.Fatal("expected to find the media variant of DC 1")
	}
	if dc.Addr != "1.1.1.2:443" {
		t.Fatalf("got wrong DC: %+v", dc)
	}
	if _, ok := o.Find(DcCDN, 1); ok {
		t.Fatal("did not expect a CDN entry for DC 1")
	}
}

func TestDcOptionsAllReturnsACopy(t *testing.T) {
	o := NewDcOptions(DataCenter{ID: 1})
	items := o.All()
	items[0].ID = 999
	if dc, _ := o.Find(DcRegular, 1); dc.ID != 1 {
		t.Fatal("mutating the slice returned by All() must not affect the underlying options")
	}
}

func TestDcOptionsMergeReplacesExistingAndAppendsNew(t *testing.T) {
	o := NewDcOptions(DataCenter{ID: 1, Kind: DcRegular, Addr: "old:443"})
	o.Merge([]DataCenter{
		{ID: 1, Kind: DcRegular, Addr: "new:443"},
		{ID: 2, Kind: DcRegular, Addr: "fresh:443"},
	})
	dc1, ok := o.Find(DcRegular, 1)
	if !ok || dc1.Addr != "new:443" {
		t.Fatalf("expected DC 1 replaced with new address, got %+v ok=%v", dc1, ok)
	}
	dc2, ok := o.Find(DcRegular, 2)
	if !ok || dc2.Addr != "fresh:443" {
		t.Fatalf("expected DC 2 appended, got %+v ok=%v", dc2, ok)
	}
	if len(o.All()) != 2 {
		t.Fatalf("expected 2 total entries, got %d", len(o.All()))
	}
}

func TestDefaultTestDcOptionsHasThreeRegularDCs(t *testing.T) {
	o := DefaultTestDcOptions()
	if len(o.All()) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(o.All()))
	}
	for _, dc := range o.All() {
		if dc.Kind != DcRegular || !dc.Test {
			t.Fatalf("expected a regular test DC, got %+v", dc)
		}
	}
}
