package pipeline

import (
	"testing"

	"sellout/internal"
)

func validEntry() internal.CanonicalEntry {
	return internal.CanonicalEntry{
		UploadID:   "u1",
		Reseller:   "Boxnox",
		ProductEAN: "7350154320008",
		Month:      1,
		Year:       2024,
		Quantity:   1,
		SalesLC:    "202,48",
		Currency:   "EUR",
	}
}

func TestMapEntries(t *testing.T) {
	rows := []internal.CleanedRow{
		{
			EAN:      "7350154320008",
			SKU:      "BBSC100",
			Month:    1,
			Year:     2024,
			Quantity: internal.FloatPtr(3),
			SalesLC:  "202,48",
			Reseller: "Boxnox",
			Currency: "EUR",
		},
		{
			SKU:      "Ghost of Tom 30ml",
			Month:    2,
			Year:     2025,
			SalesLC:  "0",
			Reseller: "Galilu",
			Currency: "PLN",
		},
	}

	entries := MapEntries(rows, "upload-1")
	if len(entries) != 2 {
		t.Fatalf("entries=%d", len(entries))
	}
	if entries[0].UploadID != "upload-1" || entries[0].Quantity != 3 {
		t.Fatalf("first: %+v", entries[0])
	}
	if entries[0].FunctionalName != "BBSC100" {
		t.Fatalf("functional name: %+v", entries[0])
	}
	// nil quantity maps to zero, the gate decides whether it lives
	if entries[1].Quantity != 0 || entries[1].ProductEAN != "" {
		t.Fatalf("second: %+v", entries[1])
	}
}

func TestGate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*internal.CanonicalEntry)
		reject bool
	}{
		{"valid", func(e *internal.CanonicalEntry) {}, false},
		{"missing reseller", func(e *internal.CanonicalEntry) { e.Reseller = "" }, true},
		{"missing currency", func(e *internal.CanonicalEntry) { e.Currency = "" }, true},
		{"month zero", func(e *internal.CanonicalEntry) { e.Month = 0 }, true},
		{"month thirteen", func(e *internal.CanonicalEntry) { e.Month = 13 }, true},
		{"ancient year", func(e *internal.CanonicalEntry) { e.Year = 1999 }, true},
		{"missing amount", func(e *internal.CanonicalEntry) { e.SalesLC = "" }, true},
		{"negative quantity", func(e *internal.CanonicalEntry) { e.Quantity = -2 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEntry()
			tc.mutate(&e)
			res := Gate([]internal.CanonicalEntry{e})
			if tc.reject {
				if res.Rejected != 1 || len(res.Accepted) != 0 {
					t.Fatalf("expected rejection: %+v", res)
				}
				if len(res.Reasons) != 1 || res.Reasons[0].Kind != "gate_reject" {
					t.Fatalf("reasons: %+v", res.Reasons)
				}
			} else {
				if res.Rejected != 0 || len(res.Accepted) != 1 {
					t.Fatalf("expected acceptance: %+v", res)
				}
			}
		})
	}
}

func TestGateCountsAllRejections(t *testing.T) {
	bad := validEntry()
	bad.Month = 0
	res := Gate([]internal.CanonicalEntry{validEntry(), bad, validEntry()})
	if len(res.Accepted) != 2 || res.Rejected != 1 {
		t.Fatalf("accepted=%d rejected=%d", len(res.Accepted), res.Rejected)
	}
}
