package internaldefs

import (
	"strings"
	"testing"
)

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 0, 2})
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
	if CumulativeBuckets(nil) != ([8]uint64{}) {
		t.Fatal("nil buckets should be all zero")
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "go2fa_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q breaks the naming scheme", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(HistogramBoundSuffix) != len(HistogramBounds)+1 {
		t.Fatal("bucket suffixes must cover every bound plus +Inf")
	}
}
