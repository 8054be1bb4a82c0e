package bzip2

import "testing"

func TestBuildCodeLengthsRespectsMaxLen(t *testing.T) {
	// A sharply skewed frequency table, the case that most stresses the
	// length-limiting refinement loop in buildCodeLengths.
	freq := make([]int32, 20)
	freq[0] = 1
	for i := 1; i < len(freq); i++ {
		freq[i] = int32(1 << uint(i))
	}
	const maxLen = 12
	lens := buildCodeLengths(freq, maxLen)
	if len(lens) != len(freq) {
		t.Fatalf("got %d lengths, want %d", len(lens), len(freq))
	}
	for i, l := range lens {
		if l < 1 {
			t.Errorf("symbol %d has length %d, want >=1", i, l)
		}
		if int(l) > maxLen {
			t.Errorf("symbol %d has length %d, want <=%d", i, l, maxLen)
		}
	}
}

func TestBuildCodeLengthsUniform(t *testing.T) {
	freq := make([]int32, 8)
	for i := range freq {
		freq[i] = 10
	}
	lens := buildCodeLengths(freq, 20)
	for i, l := range lens {
		if l != lens[0] {
			t.Errorf("symbol %d has length %d, want uniform %d", i, l, lens[0])
		}
	}
}

// TestHuffmanRoundTrip builds code lengths and canonical codes for a skewed
// alphabet, packs a long stream of symbols with bitWriter, and decodes them
// back one bit at a time through decodeTable, matching the way the
// decompressor's stepSymbols phase consumes bits (spec §4.3, §4.8).
func TestHuffmanRoundTrip(t *testing.T) {
	freq := []int32{100, 50, 25, 10, 5, 3, 2, 1}
	lens := buildCodeLengths(freq, encMaxCodeLen)
	codes, minLen, maxLen := assignCanonicalCodes(lens)

	var table decodeTable
	table.build(lens, minLen, maxLen)

	var symbols []uint16
	for sym := range freq {
		for k := 0; k < 5; k++ {
			symbols = append(symbols, uint16(sym))
		}
	}

	var bw bitWriter
	bw.reset(nil)
	for _, sym := range symbols {
		bw.writeBits(uint(lens[sym]), codes[sym])
	}
	bw.finish()

	var br bitReader
	br.in = bw.buf

	var got []uint16
	zn, zvec := 0, int32(0)
	for len(got) < len(symbols) {
		bit, ok := br.getBits(1)
		if !ok {
			t.Fatalf("ran out of bits after decoding %d/%d symbols", len(got), len(symbols))
		}
		nzn, nzvec, sym, done := table.decodeOneBit(zn, zvec, bit)
		zn, zvec = nzn, nzvec
		if !done {
			continue
		}
		got = append(got, sym)
		zn, zvec = 0, 0
	}

	if len(got) != len(symbols) {
		t.Fatalf("decoded %d symbols, want %d", len(got), len(symbols))
	}
	for i := range symbols {
		if got[i] != symbols[i] {
			t.Fatalf("symbol %d: got %d, want %d", i, got[i], symbols[i])
		}
	}
}

func TestAssignCanonicalCodesPrefixFree(t *testing.T) {
	lens := []uint8{2, 2, 2, 3, 3}
	codes, minLen, maxLen := assignCanonicalCodes(lens)
	if minLen != 2 || maxLen != 3 {
		t.Fatalf("got minLen=%d maxLen=%d, want 2,3", minLen, maxLen)
	}
	seen := map[string]bool{}
	for i, l := range lens {
		key := ""
		for b := int(l) - 1; b >= 0; b-- {
			if codes[i]&(1<<uint(b)) != 0 {
				key += "1"
			} else {
				key += "0"
			}
		}
		if seen[key] {
			t.Fatalf("duplicate code %q for symbol %d", key, i)
		}
		seen[key] = true
	}
}
