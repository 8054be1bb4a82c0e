package bzip2

import "testing"

func TestNumHuffmanGroups(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 2}, {199, 2}, {200, 3}, {599, 3}, {600, 4},
		{1199, 4}, {1200, 5}, {2399, 5}, {2400, 6}, {100000, 6},
	}
	for _, c := range cases {
		if got := numHuffmanGroups(c.n); got != c.want {
			t.Errorf("numHuffmanGroups(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestSelectorMTFRoundTrip(t *testing.T) {
	const nGroups = 5
	selectors := []uint8{0, 0, 1, 4, 4, 2, 0, 3, 1, 1, 2}
	mtf := selectorMTF(selectors, nGroups)
	got := undoSelectorMTF(mtf, nGroups)
	if len(got) != len(selectors) {
		t.Fatalf("got %d selectors, want %d", len(got), len(selectors))
	}
	for i := range selectors {
		if got[i] != selectors[i] {
			t.Fatalf("index %d: got %d, want %d", i, got[i], selectors[i])
		}
	}
}

// TestOptimizeHuffmanGroupsProducesUsableTables exercises the optimizer
// against a realistic skewed symbol stream and checks every invariant the
// encoder's emitBlock relies on: one code length per alphabet symbol in
// every group, at least one selector, and selectors that index real groups.
func TestOptimizeHuffmanGroupsProducesUsableTables(t *testing.T) {
	const alphaSize = 20
	var mtfSyms []uint16
	for i := 0; i < 3000; i++ {
		sym := uint16(i % 7)
		mtfSyms = append(mtfSyms, sym)
	}
	mtfSyms = append(mtfSyms, uint16(alphaSize-1)) // EOB

	mtfFreq := make([]int32, alphaSize)
	for _, s := range mtfSyms {
		mtfFreq[s]++
	}
	groups, selectors := optimizeHuffmanGroups(mtfSyms, mtfFreq, alphaSize)

	wantGroups := numHuffmanGroups(len(mtfSyms))
	if len(groups) != wantGroups {
		t.Fatalf("got %d groups, want %d", len(groups), wantGroups)
	}
	wantSelectors := (len(mtfSyms) + numBlockSyms - 1) / numBlockSyms
	if len(selectors) != wantSelectors {
		t.Fatalf("got %d selectors, want %d", len(selectors), wantSelectors)
	}
	for i, g := range groups {
		if len(g.lens) != alphaSize {
			t.Fatalf("group %d: got %d lengths, want %d", i, len(g.lens), alphaSize)
		}
		for j, l := range g.lens {
			if l < 1 || int(l) > encMaxCodeLen {
				t.Errorf("group %d symbol %d: length %d out of range", i, j, l)
			}
		}
	}
	for i, s := range selectors {
		if int(s) >= len(groups) {
			t.Fatalf("selector %d = %d, out of range for %d groups", i, s, len(groups))
		}
	}
}

func TestOptimizeHuffmanGroupsSingleSymbol(t *testing.T) {
	mtfSyms := []uint16{0, 0, 0, 0, 1}
	mtfFreq := []int32{4, 1}
	groups, selectors := optimizeHuffmanGroups(mtfSyms, mtfFreq, 2)
	if len(groups) == 0 || len(selectors) == 0 {
		t.Fatalf("expected at least one group and selector for a tiny block")
	}
}
