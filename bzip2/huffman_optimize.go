package bzip2

// This file implements the encoder's multi-table Huffman selector
// optimization (spec §4.6), grounded in the reference implementation's
// BZ2_hbAssignCodes / sendMTFValues iteration structure as described by
// spec §4.6 and cross-checked against the shape of compress.rs in
// original_source. The teacher package has no equivalent: dsnet/compress's
// writer.go drives a single prefix.Encoder per block (it never builds more
// than one Huffman table), so this whole multi-group cost-based
// reassignment loop is new code written directly against the spec,
// following the reference algorithm's structure rather than any teacher
// source.

// numHuffmanGroups picks nGroups for a block of nMTF symbols, per the
// fixed thresholds of spec §4.6.
func numHuffmanGroups(nMTF int) int {
	switch {
	case nMTF < 200:
		return 2
	case nMTF < 600:
		return 3
	case nMTF < 1200:
		return 4
	case nMTF < 2400:
		return 5
	default:
		return 6
	}
}

// huffmanGroup holds the per-table state the optimizer iterates on: the
// running per-symbol frequency tally, the assigned code lengths, and the
// canonical codes built from those lengths.
type huffmanGroup struct {
	freq  []int32
	lens  []uint8
	codes []uint32
	minLen, maxLen int
}

// lesserICost and greaterICost are BZ_LESSER_ICOST/BZ_GREATER_ICOST: the two
// artificial per-symbol "costs" the initial partition (spec §4.6 step 2)
// seeds each table's length array with, before any table has ever been
// built from real frequencies.
const (
	lesserICost  = 0
	greaterICost = 15
)

// seedInitialPartition carves the alphabet into nGroups contiguous symbol
// ranges of roughly equal total frequency (per mtfFreq, the block's overall
// per-symbol tally) and seeds each table's lens with lesserICost inside its
// own range, greaterICost everywhere else — a direct port of
// BZ2_hbAssignCodes's seeding loop in the reference encoder's
// sendMTFValues, so that the first cost-based reassignment pass (spec §4.6
// step 3b) has real per-table costs to compare instead of a tie.
func seedInitialPartition(groups []*huffmanGroup, mtfFreq []int32, alphaSize int) {
	nGroups := len(groups)
	remaining := int32(0)
	for _, f := range mtfFreq {
		remaining += f
	}
	gs := 0
	for part := nGroups; part >= 1; part-- {
		target := remaining / int32(part)
		ge := gs - 1
		aFreq := int32(0)
		for aFreq < target && ge < alphaSize-1 {
			ge++
			aFreq += mtfFreq[ge]
		}
		if ge > gs && part != nGroups && part != 1 && (nGroups-part)%2 == 1 {
			aFreq -= mtfFreq[ge]
			ge--
		}
		lens := groups[nGroups-part].lens
		for v := 0; v < alphaSize; v++ {
			if v >= gs && v <= ge {
				lens[v] = lesserICost
			} else {
				lens[v] = greaterICost
			}
		}
		remaining -= aFreq
		gs = ge + 1
	}
}

// optimizeHuffmanGroups runs the spec §4.6 iterative table assignment over
// mtfSyms (the block's full stream of literal/RUNA/RUNB/EOB symbols,
// already produced by the MTF+RLE2 stage). mtfFreq is the block's overall
// per-symbol frequency tally (indices 0..alphaSize-1), used only to seed
// the initial partition. It returns the finished tables plus, for every
// 50-symbol group, the index of the table that encodes it.
func optimizeHuffmanGroups(mtfSyms []uint16, mtfFreq []int32, alphaSize int) (groups []*huffmanGroup, selectors []uint8) {
	nMTF := len(mtfSyms)
	nGroups := numHuffmanGroups(nMTF)
	nSelectors := (nMTF + numBlockSyms - 1) / numBlockSyms
	if nSelectors == 0 {
		nSelectors = 1
	}

	groups = make([]*huffmanGroup, nGroups)
	for i := range groups {
		groups[i] = &huffmanGroup{freq: make([]int32, alphaSize), lens: make([]uint8, alphaSize)}
	}
	seedInitialPartition(groups, mtfFreq, alphaSize)

	selectors = make([]uint8, nSelectors)

	for iter := 0; iter < nHuffIters; iter++ {
		for _, g := range groups {
			for i := range g.freq {
				g.freq[i] = 0
			}
		}

		var cost [maxNumTrees]int32
		gs := 0
		for s := 0; s < nSelectors; s++ {
			ge := gs + numBlockSyms
			if ge > nMTF {
				ge = nMTF
			}

			for i := range cost[:nGroups] {
				cost[i] = 0
			}
			for _, sym := range mtfSyms[gs:ge] {
				for t := 0; t < nGroups; t++ {
					cost[t] += int32(groups[t].lens[sym])
				}
			}
			best, bestCost := 0, cost[0]
			for t := 1; t < nGroups; t++ {
				if cost[t] < bestCost {
					best, bestCost = t, cost[t]
				}
			}
			selectors[s] = uint8(best)
			for _, sym := range mtfSyms[gs:ge] {
				groups[best].freq[sym]++
			}
			gs = ge
		}

		for _, g := range groups {
			g.lens = buildCodeLengths(g.freq, encMaxCodeLen)
			g.codes, g.minLen, g.maxLen = assignCanonicalCodes(g.lens)
		}
	}

	return groups, selectors
}

// selectorMTF encodes the selector stream with its own move-to-front pass
// before the unary delta coding of spec §4.6 "Selector transmission" — a
// different, smaller MTF dictionary than the 256-entry byte one in
// mtf_rle2.go, sized to nGroups.
func selectorMTF(selectors []uint8, nGroups int) []uint8 {
	pos := make([]uint8, nGroups)
	for i := range pos {
		pos[i] = uint8(i)
	}
	out := make([]uint8, len(selectors))
	for i, s := range selectors {
		j := 0
		for pos[j] != s {
			j++
		}
		out[i] = uint8(j)
		for ; j > 0; j-- {
			pos[j] = pos[j-1]
		}
		pos[0] = s
	}
	return out
}

// undoSelectorMTF is the decode-side inverse of selectorMTF.
func undoSelectorMTF(mtfSel []uint8, nGroups int) []uint8 {
	pos := make([]uint8, nGroups)
	for i := range pos {
		pos[i] = uint8(i)
	}
	out := make([]uint8, len(mtfSel))
	for i, j := range mtfSel {
		v := pos[j]
		for ; j > 0; j-- {
			pos[j] = pos[j-1]
		}
		pos[0] = v
		out[i] = v
	}
	return out
}
