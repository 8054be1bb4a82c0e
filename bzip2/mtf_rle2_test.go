package bzip2

import "testing"

func TestMoveToFrontRoundTrip(t *testing.T) {
	alphabet := []byte{10, 20, 30, 40, 50, 60, 70}

	var enc, dec moveToFront
	enc.init(alphabet)
	dec.init(alphabet)

	input := []byte{10, 10, 70, 20, 70, 70, 40, 10, 60, 30}
	for i, b := range input {
		pos := enc.encodeStep(b)
		got := dec.decodeStep(pos)
		if got != b {
			t.Fatalf("step %d: got %d, want %d (pos=%d)", i, got, b, pos)
		}
	}
}

func TestMoveToFrontFrontByte(t *testing.T) {
	var m moveToFront
	m.init([]byte{1, 2, 3, 4})
	if pos := m.encodeStep(1); pos != 0 {
		t.Fatalf("encoding the already-front byte: got pos %d, want 0", pos)
	}
	if pos := m.encodeStep(3); pos != 2 {
		t.Fatalf("got pos %d, want 2", pos)
	}
	// 3 is now at the front; encoding it again must return 0.
	if pos := m.encodeStep(3); pos != 0 {
		t.Fatalf("got pos %d, want 0 after promotion", pos)
	}
}

func TestRunLengthSymbolsRoundTrip(t *testing.T) {
	for n := 0; n < 2000; n++ {
		syms := runLengthSymbols(n)
		var acc runAccumulator
		for _, s := range syms {
			if err := acc.add(s); err != nil {
				t.Fatalf("n=%d: add returned error: %v", n, err)
			}
		}
		if n == 0 {
			if acc.pending() {
				t.Fatalf("n=0 should not leave the accumulator pending")
			}
			continue
		}
		if !acc.pending() {
			t.Fatalf("n=%d: expected the accumulator to be pending", n)
		}
		if int(acc.es) != n {
			t.Fatalf("n=%d: accumulator reconstructed %d", n, acc.es)
		}
	}
}

func TestRunLengthSymbolsAlphabet(t *testing.T) {
	for _, s := range runLengthSymbols(1) {
		if s != runA {
			t.Fatalf("runLengthSymbols(1) = %v, want all runA", s)
		}
	}
	for _, s := range runLengthSymbols(2) {
		if s != runB {
			t.Fatalf("runLengthSymbols(2) = %v, want all runB", s)
		}
	}
}

func TestRunAccumulatorOverflowGuard(t *testing.T) {
	var acc runAccumulator
	var err error
	for i := 0; i < 25; i++ {
		if err = acc.add(runA); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("expected an error once logN exceeds its cap")
	}
}
