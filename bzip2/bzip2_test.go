package bzip2

import (
	"bytes"
	stdbzip2 "compress/bzip2"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// compressAll drives a Writer over data and returns the full bzip2 stream.
func compressAll(t *testing.T, data []byte, level BlockSize) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := NewWriterLevel(&buf, level)
	if err != nil {
		t.Fatalf("NewWriterLevel: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func testdataCorpus() []struct {
	name string
	data []byte
} {
	rnd := rand.New(rand.NewSource(1))
	randomBytes := make([]byte, 5000)
	rnd.Read(randomBytes)

	repeated := bytes.Repeat([]byte{'A'}, 1<<20)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 2000)

	return []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"SingleByte", []byte("x")},
		{"ShortText", []byte("lang is it ompaad")},
		{"Text", []byte(text)},
		{"Random", randomBytes},
		{"Repeated1MiB", repeated},
		{"BlockBoundary", bytes.Repeat([]byte{'z'}, blockSize100kUnit)},
		{"BlockBoundaryPlus1", bytes.Repeat([]byte{'z'}, blockSize100kUnit+1)},
	}
}

// TestRoundTripWriterReader exercises the high-level Writer/Reader pair
// across the module's block-size range (spec §3 block_size_100k), checking
// the fundamental round-trip law: decode(encode(x)) == x.
func TestRoundTripWriterReader(t *testing.T) {
	for _, v := range testdataCorpus() {
		for _, level := range []BlockSize{BestSpeed, 5, BestCompression} {
			t.Run(v.name, func(t *testing.T) {
				compressed := compressAll(t, v.data, level)

				zr, err := NewReader(bytes.NewReader(compressed), nil)
				if err != nil {
					t.Fatalf("NewReader: %v", err)
				}
				got, err := io.ReadAll(zr)
				if err != nil {
					t.Fatalf("ReadAll: %v", err)
				}
				if err := zr.Close(); err != nil {
					t.Fatalf("Close: %v", err)
				}
				if diff := cmp.Diff(v.data, got, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

// TestStdlibCrossCheck verifies that the standard library's read-only bzip2
// decoder (compress/bzip2) accepts the wire format this Writer produces,
// the same cross-check the teacher's own writer_test.go performed against
// the C library.
func TestStdlibCrossCheck(t *testing.T) {
	for _, v := range testdataCorpus() {
		t.Run(v.name, func(t *testing.T) {
			compressed := compressAll(t, v.data, DefaultBlockSize)
			got, err := io.ReadAll(stdbzip2.NewReader(bytes.NewReader(compressed)))
			if err != nil {
				t.Fatalf("stdlib bzip2 decode error: %v", err)
			}
			if !bytes.Equal(got, v.data) {
				t.Errorf("stdlib decode mismatch: got %d bytes, want %d bytes", len(got), len(v.data))
			}
		})
	}
}

// TestChunkedDecodeEquivalence checks that decoding a stream fed in
// one-byte-at-a-time chunks through the low-level Decompressor produces the
// same output as decoding it in one shot, the resumability property spec
// §4.8/§9 requires of the bit-level state machine.
func TestChunkedDecodeEquivalence(t *testing.T) {
	data := []byte(strings.Repeat("abcabcabcabd", 5000))
	compressed := compressAll(t, data, 3)

	oneShot, err := NewDecompressor(DecompressConfig{})
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	var wantBuf []byte
	in := compressed
	out := make([]byte, 1<<16)
	for {
		_, produced, status, err := oneShot.Process(in, out)
		if err != nil {
			t.Fatalf("one-shot Process: %v", err)
		}
		wantBuf = append(wantBuf, out[:produced]...)
		in = nil
		if status == StatusStreamEnd {
			break
		}
	}

	chunked, err := NewDecompressor(DecompressConfig{})
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	var gotBuf []byte
	pos := 0
	for {
		var chunk []byte
		if pos < len(compressed) {
			end := pos + 1
			chunk = compressed[pos:end]
		}
		consumed, produced, status, err := chunked.Process(chunk, out)
		if err != nil {
			t.Fatalf("chunked Process: %v", err)
		}
		pos += consumed
		gotBuf = append(gotBuf, out[:produced]...)
		if status == StatusStreamEnd {
			break
		}
		if consumed == 0 && produced == 0 && pos >= len(compressed) {
			t.Fatalf("chunked decode stalled before StreamEnd")
		}
	}

	if !bytes.Equal(gotBuf, wantBuf) {
		t.Fatalf("chunked decode diverged from one-shot decode")
	}
	if !bytes.Equal(gotBuf, data) {
		t.Fatalf("chunked decode did not reproduce the original data")
	}
}

// TestFastSmallModeEquivalence checks decode_fast(S) == decode_small(S)
// (spec §4.8 "Decode mode").
func TestFastSmallModeEquivalence(t *testing.T) {
	data := []byte(strings.Repeat("mississippi river ", 3000))
	compressed := compressAll(t, data, DefaultBlockSize)

	decodeWith := func(mode DecodeMode) []byte {
		zr, err := NewReader(bytes.NewReader(compressed), &ReaderConfig{Mode: mode})
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		got, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		return got
	}

	fast := decodeWith(ModeFast)
	small := decodeWith(ModeSmall)
	if !bytes.Equal(fast, small) {
		t.Fatalf("ModeFast and ModeSmall produced different output")
	}
	if !bytes.Equal(fast, data) {
		t.Fatalf("decoded output does not match original data")
	}
}

// TestMultistreamConcatenation checks decode(S1 || S2) == decode(S1) ||
// decode(S2) via Reader's transparent continuation across concatenated
// bzip2 streams (spec §4.8 "Multi-stream").
func TestMultistreamConcatenation(t *testing.T) {
	first := []byte("hello, ")
	second := []byte("world!")

	var both bytes.Buffer
	both.Write(compressAll(t, first, BestSpeed))
	both.Write(compressAll(t, second, BestSpeed))

	zr, err := NewReader(&both, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := append(append([]byte(nil), first...), second...)
	if !bytes.Equal(got, want) {
		t.Fatalf("multistream mismatch:\ngot  %q\nwant %q", got, want)
	}
}

// TestWorkFactorOne checks that a pathologically repetitive block still
// terminates and round-trips correctly when work_factor is clamped to its
// minimum, forcing every block through the fallback sort (spec §4.4).
func TestWorkFactorOne(t *testing.T) {
	data := bytes.Repeat([]byte{0x41}, 900000)
	var buf bytes.Buffer
	c, err := NewCompressor(CompressConfig{BlockSize: 9, WorkFactor: 1})
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	out := make([]byte, 1<<16)
	in := data
	for {
		consumed, produced, status, err := c.Process(Finish, in, out)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		in = in[consumed:]
		buf.Write(out[:produced])
		if status == StatusStreamEnd {
			break
		}
	}
	if err := c.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch under work_factor=1")
	}
}

// TestCorruptStreamMagic checks that input whose first bytes are not a
// "BZh" header is rejected with ErrMagic (spec §6 "Error codes",
// DATA_ERROR_MAGIC).
func TestCorruptStreamMagic(t *testing.T) {
	bad := []byte("garbagedata")
	d, err := NewDecompressor(DecompressConfig{})
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	out := make([]byte, 64)
	_, _, _, err = d.Process(bad, out)
	if !Is(err, ErrMagic) {
		t.Fatalf("got err=%v, want ErrMagic", err)
	}
}

// TestCorruptBlockMagic tampers with a valid stream's block magic and
// expects ErrCorrupt or ErrMagic once the decoder reaches it (spec §6
// DATA_ERROR).
func TestCorruptBlockMagic(t *testing.T) {
	compressed := compressAll(t, []byte(strings.Repeat("corruption test ", 200)), BestSpeed)
	// Flip byte 6, which lies inside the 48-bit block magic (bytes 4..9,
	// right after the 4-byte stream header).
	if len(compressed) < 10 {
		t.Fatalf("compressed stream too short to corrupt meaningfully")
	}
	tampered := append([]byte(nil), compressed...)
	tampered[6] ^= 0xff

	d, err := NewDecompressor(DecompressConfig{})
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	out := make([]byte, 1<<16)
	in := tampered
	var gotErr error
	for gotErr == nil {
		consumed, _, status, err := d.Process(in, out)
		in = in[consumed:]
		if err != nil {
			gotErr = err
			break
		}
		if status == StatusStreamEnd || len(in) == 0 {
			break
		}
	}
	if gotErr == nil {
		t.Fatalf("expected a decode error from a tampered block, got none")
	}
	if !Is(gotErr, ErrCorrupt) && !Is(gotErr, ErrMagic) {
		t.Fatalf("got err=%v, want ErrCorrupt or ErrMagic", gotErr)
	}
}

// TestTruncatedStream checks that the low-level Decompressor, fed a stream
// cut off before its trailer, does not report StatusStreamEnd. The
// Decompressor cannot tell that no more input will come, so it returns no
// error here; it is Reader that turns an exhausted source into
// ErrUnexpectedEOF (spec §6 UNEXPECTED_EOF).
func TestTruncatedStream(t *testing.T) {
	compressed := compressAll(t, []byte(strings.Repeat("truncate me please ", 500)), BestSpeed)
	if len(compressed) < 20 {
		t.Fatalf("compressed stream too short for this test")
	}
	truncated := compressed[:len(compressed)-10]

	d, err := NewDecompressor(DecompressConfig{})
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	out := make([]byte, 1<<16)
	_, _, status, err := d.Process(truncated, out)
	if err == nil && status == StatusStreamEnd {
		t.Fatalf("truncated stream unexpectedly reported StatusStreamEnd")
	}
}
