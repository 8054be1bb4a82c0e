package bzip2

// moveToFront implements the move-to-front dictionary shared by the
// encoder and decoder (spec §4.5). Unlike the teacher's mtf_rle2.go, which
// folds RLE2 into a side-channel "runs" array returned alongside the MTF
// indices, this implementation emits RUNA/RUNB directly as symbols of the
// Huffman alphabet — the actual bzip2 wire format has no side channel, and
// the resumable decoder (§4.8) needs to interleave run accumulation with
// ordinary Huffman symbol decoding one symbol at a time.
type moveToFront struct {
	yy [256]byte
	n  int
}

func (m *moveToFront) init(alphabet []byte) {
	m.n = len(alphabet)
	copy(m.yy[:m.n], alphabet)
}

// encodeStep moves ll8 (a byte already remapped into the block's sequential
// alphabet) to the front of the dictionary and returns its prior 0-based
// position.
func (m *moveToFront) encodeStep(ll8 byte) int {
	if ll8 == m.yy[0] {
		return 0
	}
	j := 1
	tmp := m.yy[0]
	for ll8 != tmp {
		tmp2 := tmp
		tmp = m.yy[j]
		m.yy[j] = tmp2
		j++
	}
	m.yy[0] = ll8
	return j - 1
}

// decodeStep moves the dictionary entry currently at 0-based position pos
// to the front and returns its (sequential-alphabet) value.
func (m *moveToFront) decodeStep(pos int) byte {
	val := m.yy[pos]
	copy(m.yy[1:pos+1], m.yy[0:pos])
	m.yy[0] = val
	return val
}

// runLengthSymbols returns the RUNA/RUNB unary-prefix sequence that encodes
// a pending run of zPend MTF-front repeats, per spec §4.5:
//
//	while zPend > 0: emit (zPend-1 & 1) ? RUNB : RUNA; zPend = (zPend-1) >> 1
func runLengthSymbols(zPend int) []uint16 {
	var syms []uint16
	for zPend > 0 {
		if (zPend-1)&1 == 1 {
			syms = append(syms, runB)
		} else {
			syms = append(syms, runA)
		}
		zPend = (zPend - 1) >> 1
	}
	return syms
}

// runAccumulator reconstructs a run length from a sequence of decoded
// RUNA/RUNB symbols (spec §4.8 "Symbol decoding"). logN is capped at 21 to
// prevent the accumulated run (which is bounded in practice by twice the
// maximum post-RLE1 block size) from overflowing a 32-bit count.
type runAccumulator struct {
	es   int64
	logN uint
}

func (r *runAccumulator) add(sym uint16) error {
	if r.logN >= 21 {
		return ErrCorrupt
	}
	mul := int64(1)
	if sym == runB {
		mul = 2
	}
	r.es += mul << r.logN
	r.logN++
	return nil
}

func (r *runAccumulator) reset() { r.es, r.logN = 0, 0 }

func (r *runAccumulator) pending() bool { return r.logN > 0 }
