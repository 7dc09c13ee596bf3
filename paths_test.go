package casseq

import "testing"

// TestCounterPaths verifies separator stripping and the lock suffix.
func TestCounterPaths(t *testing.T) {
	cases := []struct {
		name     string
		ns       string
		wantID   string
		wantLock string
	}{
		{"bare", "orders", "/orders", "/orders/lock"},
		{"leading", "/orders", "/orders", "/orders/lock"},
		{"trailing", "orders/", "/orders", "/orders/lock"},
		{"both", "/orders/", "/orders", "/orders/lock"},
		{"many separators", "///orders///", "/orders", "/orders/lock"},
		{"nested", "billing/invoices", "/billing/invoices", "/billing/invoices/lock"},
		{"nested trimmed", "/billing/invoices/", "/billing/invoices", "/billing/invoices/lock"},
		{"empty is degenerate but valid", "", "/", "//lock"},
		{"only separators", "///", "/", "//lock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, lock := counterPaths(tc.ns)
			if id != tc.wantID || lock != tc.wantLock {
				t.Fatalf("counterPaths(%q) = %q, %q; want %q, %q", tc.ns, id, lock, tc.wantID, tc.wantLock)
			}
		})
	}
}

// TestCounterPathsEquivalence: namespaces differing only in outer separators
// must map to the same counter.
func TestCounterPathsEquivalence(t *testing.T) {
	base, _ := counterPaths("orders")
	for _, ns := range []string{"/orders", "orders/", "/orders/", "//orders//"} {
		if id, _ := counterPaths(ns); id != base {
			t.Fatalf("counterPaths(%q) = %q, want %q", ns, id, base)
		}
	}
}
