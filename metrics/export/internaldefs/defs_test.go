package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gosession_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q breaks naming", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(HistogramBoundSuffix) != len(HistogramUpperBounds)+1 {
		t.Fatalf("bucket suffixes must cover every bound plus +Inf")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
