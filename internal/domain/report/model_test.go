package report

import (
	"errors"
	"testing"
)

func TestParse_CaseInsensitiveFields(t *testing.T) {
	body := []byte(`{"ID":"abc123","TITLE":"Broken winch","details":"seized drum","PartNumber":412,"unknown":true}`)

	r, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if r.ID != "abc123" {
		t.Errorf("expected id abc123, got %q", r.ID)
	}
	if r.Title != "Broken winch" {
		t.Errorf("expected title from upper-case key, got %q", r.Title)
	}
	if r.PartNumber != 412 {
		t.Errorf("expected part number 412, got %d", r.PartNumber)
	}
}

func TestParse_Failures(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("not json"),
		"missing id":   []byte(`{"title":"no id"}`),
		"blank id":     []byte(`{"id":"   "}`),
		"invalid utf8": {0xff, 0xfe, 0xfd},
		"wrong type":   []byte(`{"id":42}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(body)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestRepairReport_PartID(t *testing.T) {
	explicit := &RepairReport{ID: "abc123", PartNumber: 250}
	if got := explicit.PartID(); got != 250 {
		t.Errorf("expected explicit part number, got %d", got)
	}

	derived := &RepairReport{ID: "abc123", PartNumber: 5}
	first := derived.PartID()
	if first < MinPartID || first > MaxPartID {
		t.Fatalf("derived part id %d out of range", first)
	}
	if again := (&RepairReport{ID: "abc123"}).PartID(); again != first {
		t.Errorf("expected deterministic part id, got %d and %d", first, again)
	}
}
