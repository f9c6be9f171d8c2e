package episodeid_test

import (
	"errors"
	"testing"

	"danmu/internal/episodeid"
)

func TestEncodeLayout(t *testing.T) {
	id, err := episodeid.Encode(42, 1, 7)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if id != 25000042010007 {
		t.Fatalf("unexpected id %d", id)
	}

	again, _ := episodeid.Encode(42, 1, 7)
	if again != id {
		t.Fatalf("expected deterministic encoding, got %d and %d", id, again)
	}
}

func TestDecodeReversesEncode(t *testing.T) {
	cases := []episodeid.Parts{
		{WorkID: 1, SourceOrder: 1, Index: 1},
		{WorkID: 999999, SourceOrder: 99, Index: 9999},
		{WorkID: 120, SourceOrder: 3, Index: 25},
	}
	for _, want := range cases {
		id := episodeid.MustEncode(want.WorkID, want.SourceOrder, want.Index)
		got, err := episodeid.Decode(id)
		if err != nil {
			t.Fatalf("Decode(%d): %v", id, err)
		}
		if got != want {
			t.Fatalf("Decode(%d) = %+v, want %+v", id, got, want)
		}
	}
}

func TestEncodeOverflow(t *testing.T) {
	if _, err := episodeid.Encode(1000000, 1, 1); !errors.Is(err, episodeid.ErrOverflow) {
		t.Fatalf("expected overflow for work id, got %v", err)
	}
	if _, err := episodeid.Encode(1, 100, 1); !errors.Is(err, episodeid.ErrOverflow) {
		t.Fatalf("expected overflow for source order, got %v", err)
	}
	if _, err := episodeid.Encode(1, 1, 10000); !errors.Is(err, episodeid.ErrOverflow) {
		t.Fatalf("expected overflow for index, got %v", err)
	}
}

func TestDecodeRejectsForeignIDs(t *testing.T) {
	for _, id := range []int64{0, 12, 13000001010001} {
		if _, err := episodeid.Decode(id); err == nil {
			t.Fatalf("expected error decoding %d", id)
		}
	}
}

func TestTrackPath(t *testing.T) {
	if got := episodeid.TrackPath(42, 25000042010007); got != "/danmaku/42/25000042010007.xml" {
		t.Fatalf("unexpected track path %q", got)
	}
}
