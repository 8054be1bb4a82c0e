package bzip2

// This file implements the Huffman code-length builder, canonical code
// assignment, and decoder limit/base/perm table construction described in
// spec §4.3. The length-assignment algorithm — a binary min-heap merge
// keyed by a packed weight/depth word, with frequency halving on length
// overflow — is the reference implementation's own BZ2_hbMakeCodeLengths,
// reconstructed here from spec §4.3 and cross-checked against the shape of
// huffman.rs in original_source.

// buildCodeLengths assigns a code length to each symbol in freq (indexed
// 0..len(freq)-1) such that no length exceeds maxLen. It never mutates freq.
func buildCodeLengths(freq []int32, maxLen int) []uint8 {
	n := len(freq)
	assertH(n >= 1, 3001)

	work := make([]int32, n)
	copy(work, freq)

	weight := make([]uint32, 2*n+2)
	parent := make([]int32, 2*n+2)
	heap := make([]int32, n+2)
	lens := make([]uint8, n)

	for {
		nHeap := 0
		for i := 0; i < n; i++ {
			w := work[i]
			if w == 0 {
				w = 1
			}
			weight[i+1] = uint32(w) << 8
			parent[i+1] = -1
			nHeap++
			heap[nHeap] = int32(i + 1)
		}
		for i := nHeap / 2; i >= 1; i-- {
			siftDown(heap, weight, i, nHeap)
		}

		nNodes := n
		for nHeap > 1 {
			n1 := heap[1]
			heap[1] = heap[nHeap]
			nHeap--
			if nHeap >= 1 {
				siftDown(heap, weight, 1, nHeap)
			}
			n2 := heap[1]
			heap[1] = heap[nHeap]
			nHeap--
			if nHeap >= 1 {
				siftDown(heap, weight, 1, nHeap)
			}

			nNodes++
			parent[n1] = int32(nNodes)
			parent[n2] = int32(nNodes)

			w1, w2 := weight[n1], weight[n2]
			d1, d2 := w1&0xff, w2&0xff
			d := d1
			if d2 > d1 {
				d = d2
			}
			weight[nNodes] = (w1 &^ 0xff) + (w2 &^ 0xff) | (d + 1)
			parent[nNodes] = -1

			nHeap++
			heap[nHeap] = int32(nNodes)
			siftUp(heap, weight, nHeap)
		}

		maxFound := 0
		for i := 0; i < n; i++ {
			depth := 0
			k := int32(i + 1)
			for parent[k] != -1 {
				k = parent[k]
				depth++
			}
			assertH(depth <= 32, 3002)
			lens[i] = uint8(depth)
			if depth > maxFound {
				maxFound = depth
			}
		}
		if maxFound <= maxLen {
			return lens
		}
		for i := range work {
			work[i] = (work[i] + 1) / 2
		}
	}
}

func siftDown(heap []int32, weight []uint32, i, n int) {
	v := heap[i]
	for {
		l := 2 * i
		if l > n {
			break
		}
		if l+1 <= n && weight[heap[l+1]] < weight[heap[l]] {
			l++
		}
		if weight[heap[l]] >= weight[v] {
			break
		}
		heap[i] = heap[l]
		i = l
	}
	heap[i] = v
}

func siftUp(heap []int32, weight []uint32, i int) {
	v := heap[i]
	for i > 1 && weight[v] < weight[heap[i/2]] {
		heap[i] = heap[i/2]
		i /= 2
	}
	heap[i] = v
}

// assignCanonicalCodes assigns dense canonical Huffman codes in ascending
// length order (spec §4.3 "Canonical codes").
func assignCanonicalCodes(lens []uint8) (codes []uint32, minLen, maxLen int) {
	minLen, maxLen = 32, 0
	for _, l := range lens {
		if int(l) < minLen {
			minLen = int(l)
		}
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	codes = make([]uint32, len(lens))
	vec := uint32(0)
	for n := minLen; n <= maxLen; n++ {
		for i, l := range lens {
			if int(l) == n {
				codes[i] = vec
				vec++
			}
		}
		vec <<= 1
	}
	return codes, minLen, maxLen
}

// decodeTable holds the limit/base/perm arrays used to decode symbols for
// one Huffman group (spec §4.3 "Decoder tables").
type decodeTable struct {
	minLen, maxLen int
	limit          [decMaxCodeLen + 2]int32
	base           [decMaxCodeLen + 2]int32
	perm           [maxAlphaSize]uint16
}

// build constructs limit/base/perm from a per-symbol length array, following
// the reference implementation's BZ2_hbCreateDecodeTables.
func (t *decodeTable) build(lens []uint8, minLen, maxLen int) {
	*t = decodeTable{minLen: minLen, maxLen: maxLen}

	pp := 0
	for i := minLen; i <= maxLen; i++ {
		for j, l := range lens {
			if int(l) == i {
				t.perm[pp] = uint16(j)
				pp++
			}
		}
	}
	for _, l := range lens {
		t.base[int(l)+1]++
	}
	for i := 1; i < len(t.base); i++ {
		t.base[i] += t.base[i-1]
	}
	vec := int32(0)
	for i := minLen; i <= maxLen; i++ {
		vec += t.base[i+1] - t.base[i]
		t.limit[i] = vec - 1
		vec <<= 1
	}
	for i := minLen + 1; i <= maxLen; i++ {
		t.base[i] = ((t.limit[i-1] + 1) << 1) - t.base[i]
	}
}

// decodeOneBit advances a single-bit-at-a-time symbol decode given the
// accumulated (zn, zvec) state; it returns the next (zn, zvec) pair and,
// once zvec falls within the current length's limit, the decoded symbol.
// Splitting the decode into single-bit steps (rather than a tight internal
// loop) is what lets the decoder driver suspend between any two bits and
// resume later with zn/zvec carried as ordinary struct fields — the
// SaveArea of spec §4.8, modeled here as plain Go state instead of a
// C-style switch/goto.
func (t *decodeTable) decodeOneBit(zn int, zvec int32, bit uint32) (nzn int, nzvec int32, sym uint16, done bool) {
	zvec = zvec<<1 | int32(bit)
	zn++
	if zn > decMaxCodeLen+1 {
		panic(ErrCorrupt)
	}
	if zn >= t.minLen && zn <= t.maxLen && zvec <= t.limit[zn] {
		idx := zvec - t.base[zn]
		if idx < 0 || int(idx) >= len(t.perm) {
			panic(ErrCorrupt)
		}
		return zn, zvec, t.perm[idx], true
	}
	return zn, zvec, 0, false
}
