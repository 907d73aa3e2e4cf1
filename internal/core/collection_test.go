package core

import (
	"math"
	"strings"
	"testing"
)

func TestCollectionAppendAndDeleteLast(t *testing.T) {
	c := Collection{}
	c.Append("Stitch", Compute(1000, 2000, Items{}))
	c.Append("Stitch", Compute(1000, 1250, Items{}))
	c.Append("Gaston", Compute(800, 900, Items{}))

	if got := len(c["Stitch"]); got != 2 {
		t.Fatalf("expected 2 records, got %d", got)
	}
	if got := c.TotalRecords(); got != 3 {
		t.Fatalf("TotalRecords = %d, want 3", got)
	}

	if !c.DeleteLast("Stitch") {
		t.Fatal("DeleteLast should succeed")
	}
	if got := c["Stitch"][0].Rate; got != 2.0 {
		t.Fatalf("wrong record deleted, remaining rate %v", got)
	}

	// Deleting the only record removes the key entirely.
	if !c.DeleteLast("Gaston") {
		t.Fatal("DeleteLast should succeed")
	}
	if _, ok := c["Gaston"]; ok {
		t.Fatal("emptied entity key should be removed")
	}

	if c.DeleteLast("Nobody") {
		t.Fatal("DeleteLast on unknown entity should report false")
	}
}

func TestCollectionRoundTrip(t *testing.T) {
	c := Collection{}
	c.Append("マレドラ", Compute(1000, 5150, Items{FiveToFour: true}))
	c.Append("マレドラ", Compute(1200, 2500, Items{}))
	c.Append("Jack & Sally", Compute(900, 1000, Items{PlusCoin: true}))

	data, err := c.EncodeBytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeCollection(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(c) {
		t.Fatalf("entity count %d, want %d", len(got), len(c))
	}
	for name, records := range c {
		decoded, ok := got[name]
		if !ok {
			t.Fatalf("entity %q missing after round trip", name)
		}
		if len(decoded) != len(records) {
			t.Fatalf("entity %q: %d records, want %d", name, len(decoded), len(records))
		}
		for i := range records {
			if decoded[i] != records[i] {
				t.Fatalf("entity %q record %d: %+v != %+v", name, i, decoded[i], records[i])
			}
		}
	}
}

func TestCollectionEncodeFormat(t *testing.T) {
	c := Collection{}
	c.Append("マレドラ", Record{Base: 1000, Boost: 2000, Final: 2000, RateRaw: 2, Rate: 2})

	data, err := c.EncodeBytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := string(data)

	// Non-ASCII keys stay literal and indentation is two spaces, matching
	// files produced by prior versions of the tool.
	if !strings.Contains(out, `"マレドラ"`) {
		t.Fatalf("entity name escaped in output:\n%s", out)
	}
	if strings.Contains(out, `\u`) {
		t.Fatalf("unexpected unicode escapes:\n%s", out)
	}
	if !strings.Contains(out, "\n  \"") {
		t.Fatalf("expected 2-space indentation:\n%s", out)
	}
	if !strings.Contains(out, `"rate_raw": 2`) {
		t.Fatalf("missing rate_raw field:\n%s", out)
	}
}

func TestDecodeCollectionEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCollection(nil)
	if err != nil {
		t.Fatalf("nil input: %v", err)
	}
	if len(c) != 0 {
		t.Fatalf("nil input should decode to empty collection, got %v", c)
	}

	c, err = DecodeCollection([]byte("null"))
	if err != nil {
		t.Fatalf("null input: %v", err)
	}
	if c == nil {
		t.Fatal("null input should decode to non-nil empty collection")
	}

	if _, err := DecodeCollection([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := DecodeCollection([]byte(`["array"]`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestCollectionStats(t *testing.T) {
	c := Collection{}
	c.Append("Stitch", Record{Base: 1000, Boost: 2000, Final: 2000, RateRaw: 2, Rate: 2})
	c.Append("Stitch", Record{Base: 1000, Boost: 1300, Final: 1000, RateRaw: 1.3, Rate: 1.3})

	st := c.Stats("Stitch")
	if st.Plays != 2 {
		t.Fatalf("Plays = %d, want 2", st.Plays)
	}
	if st.TotalFinal != 3000 {
		t.Fatalf("TotalFinal = %d, want 3000", st.TotalFinal)
	}
	if st.AvgBase != 1000 {
		t.Fatalf("AvgBase = %v, want 1000", st.AvgBase)
	}
	if st.AvgFinal != 1500 {
		t.Fatalf("AvgFinal = %v, want 1500", st.AvgFinal)
	}
	if math.Abs(st.AvgRate-1.65) > 1e-9 {
		t.Fatalf("AvgRate = %v, want 1.65", st.AvgRate)
	}

	empty := c.Stats("Nobody")
	if empty.Plays != 0 || empty.TotalFinal != 0 {
		t.Fatalf("unknown entity should have zero stats, got %+v", empty)
	}
}

func TestCollectionClone(t *testing.T) {
	c := Collection{}
	c.Append("Stitch", Record{Base: 1, Boost: 2, Final: 2, RateRaw: 2, Rate: 2})

	snap := c.Clone()
	c.Append("Stitch", Record{Base: 3, Boost: 4, Final: 4, RateRaw: 1.3, Rate: 1.3})

	if len(snap["Stitch"]) != 1 {
		t.Fatal("clone should be unaffected by later appends")
	}
}
