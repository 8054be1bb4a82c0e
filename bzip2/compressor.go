package bzip2

import (
	"fmt"
	"io"
)

// This file implements the encoder driver state machine (spec §4.7): input
// RLE1 prefiltering, block accumulation, block emission (BWT, MTF+RLE2,
// Huffman optimize, bit packing), and stream framing. The teacher's own
// writer.go (dsnet/compress/bzip2) is the structural model for the
// Init/Process/End split and the phase enum, generalized from its
// single-table Huffman path to the spec's multi-group optimizer and its
// unbounded bufio.Writer sink to the caller-supplied next_out buffer pair
// spec §2/§6 requires.

// Action selects what Process should do with the stream, mirroring the
// reference implementation's BZ_RUN/BZ_FLUSH/BZ_FINISH (spec §4.7, §6).
type Action int

const (
	Run Action = iota
	Flush
	Finish
)

// Status reports the outcome of a single Process call (spec §6 "Error
// codes").
type Status int

const (
	StatusOK Status = iota
	StatusRunOK
	StatusFlushOK
	StatusFinishOK
	StatusStreamEnd
)

type compressorPhase int

const (
	csIdle compressorPhase = iota
	csRunning
	csFlushing
	csFinishing
	csFinished
)

// CompressConfig holds a Compressor's init-time parameters (spec §3 "Stream
// (compressor) state" / §6 "init").
type CompressConfig struct {
	BlockSize  BlockSize // 1..9; 0 defaults to DefaultBlockSize
	WorkFactor int       // 0..250; 0 normalizes to 30
	Verbosity  int       // 0..4
	Verbose    io.Writer // diagnostic sink for Verbosity>=2; nil disables printing
	Allocator  Allocator
	Metrics    *Metrics
}

// Compressor is the low-level streaming encoder: caller-driven, buffer-fed,
// and resumable across Process calls (spec §2, §4.7). Most applications
// should prefer Writer.
type Compressor struct {
	cfg   CompressConfig
	phase compressorPhase

	block  []byte // post-RLE1 bytes awaiting BWT, capacity 100000*k+overshoot
	nblock int

	rle         rle1Encoder
	blockCRC    uint32
	combinedCRC uint32
	blockNo     int

	bw     bitWriter
	outBuf []byte
	outPos int

	totalIn, totalOut int64
}

// NewCompressor allocates and initializes a Compressor (spec §6 "init").
func NewCompressor(cfg CompressConfig) (*Compressor, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.BlockSize < 1 || cfg.BlockSize > 9 {
		return nil, wrapf(ErrParam, "block size %d out of range [1,9]", cfg.BlockSize)
	}
	if cfg.WorkFactor == 0 {
		cfg.WorkFactor = 30
	}
	if cfg.WorkFactor < 0 || cfg.WorkFactor > 250 {
		return nil, wrapf(ErrParam, "work factor %d out of range [0,250]", cfg.WorkFactor)
	}
	if cfg.Verbosity < 0 || cfg.Verbosity > 4 {
		return nil, wrapf(ErrParam, "verbosity %d out of range [0,4]", cfg.Verbosity)
	}
	if cfg.Allocator == nil {
		cfg.Allocator = stdAllocator
	}

	c := &Compressor{cfg: cfg}
	capacity := int(cfg.BlockSize)*blockSize100kUnit + overshoot
	c.block = cfg.Allocator.Alloc(capacity)[:0:capacity]
	c.blockCRC = 0xffffffff
	c.bw.reset(nil)
	c.phase = csIdle

	c.bw.writeBits(8, uint32(hdrMagic[0]))
	c.bw.writeBits(8, uint32(hdrMagic[1]))
	c.bw.writeBits(8, 'h')
	c.bw.writeBits(8, uint32('0'+int(cfg.BlockSize)))
	c.outBuf = append(c.outBuf, c.bw.buf...)
	c.bw.buf = c.bw.buf[:0]

	return c, nil
}

// Process advances the stream by consuming as much of nextIn and producing
// as much into nextOut as the current call allows, per spec §6 "process".
func (c *Compressor) Process(action Action, nextIn []byte, nextOut []byte) (consumedIn, producedOut int, status Status, err error) {
	defer errRecover(&err)

	if c.phase == csFinished {
		return 0, 0, StatusOK, ErrSequence
	}
	if action == Run && c.phase == csFlushing {
		return 0, 0, StatusOK, ErrSequence
	}
	if action == Flush && c.phase == csFinishing {
		return 0, 0, StatusOK, ErrSequence
	}

	producedOut += c.drain(nextOut)
	nextOut = nextOut[producedOut:]

	switch action {
	case Run:
		c.phase = csRunning
		n := c.consumeInput(nextIn)
		consumedIn += n
		c.totalIn += int64(n)
		producedOut += c.drain(nextOut)
		status = StatusRunOK

	case Flush:
		c.phase = csFlushing
		n := c.consumeInput(nextIn)
		consumedIn += n
		c.totalIn += int64(n)
		if n == len(nextIn) {
			c.flushBlock()
		}
		producedOut += c.drain(nextOut)
		if c.pendingEmpty() {
			c.phase = csRunning
			status = StatusFlushOK
		} else {
			status = StatusOK
		}

	case Finish:
		firstFinish := c.phase != csFinishing
		c.phase = csFinishing
		n := c.consumeInput(nextIn)
		consumedIn += n
		c.totalIn += int64(n)
		if n == len(nextIn) && firstFinish {
			c.flushBlock()
			c.writeTrailer()
		}
		producedOut += c.drain(nextOut)
		if n == len(nextIn) && c.pendingEmpty() {
			c.phase = csFinished
			status = StatusStreamEnd
		} else {
			status = StatusFinishOK
		}
	}
	c.totalOut += int64(producedOut)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.observeBytes("in", consumedIn)
		c.cfg.Metrics.observeBytes("out", producedOut)
	}
	return consumedIn, producedOut, status, nil
}

// End releases the Compressor's owned buffers (spec §6 "end", §4.9).
func (c *Compressor) End() error {
	if c.block != nil {
		c.cfg.Allocator.Free(c.block)
		c.block = nil
	}
	return nil
}

// consumeInput feeds in through the RLE1 prefilter into the block buffer,
// emitting full blocks as the threshold of spec §4.7 is reached. It always
// consumes the whole of in: the block buffer is flushed proactively
// whenever fewer than 5 bytes of room remain, which is always enough for
// rle1Encoder to make progress, so input is never starved by lack of block
// space.
func (c *Compressor) consumeInput(in []byte) int {
	threshold := int(c.cfg.BlockSize)*blockSize100kUnit - 19
	i := 0
	for i < len(in) {
		if threshold-c.nblock < 5 {
			c.flushBlock()
		}
		room := threshold - c.nblock
		n, produced := c.rle.encode(in[i:], c.block[c.nblock:c.nblock+room])
		c.blockCRC = updateCRC(c.blockCRC, in[i:i+n])
		c.nblock += produced
		i += n
		if c.nblock >= threshold {
			c.flushBlock()
		}
		if n == 0 {
			break
		}
	}
	return i
}

// flushBlock finishes any open RLE1 run into the block buffer and, if the
// block is non-empty, sorts/transforms/packs it onto the wire.
func (c *Compressor) flushBlock() {
	if produced, ok := c.rle.finish(c.block[c.nblock:cap(c.block)]); ok {
		c.nblock += produced
	}
	if c.nblock == 0 {
		return
	}
	c.emitBlock()
	c.blockNo++
	c.nblock = 0
	c.blockCRC = 0xffffffff
}

// emitBlock runs the BWT/MTF/RLE2/Huffman pipeline over the accumulated
// block and packs its wire-format encoding (spec §4.4-§4.6, §6 "Per-block")
// into c.bw, then appends the freshly packed bytes onto the caller-facing
// outBuf queue.
func (c *Compressor) emitBlock() {
	block := c.block[:c.nblock]

	var inUse [256]bool
	for _, b := range block {
		inUse[b] = true
	}
	var seqToUnseq []byte
	var unseqToSeq [256]byte
	for i := 0; i < 256; i++ {
		if inUse[i] {
			unseqToSeq[i] = byte(len(seqToUnseq))
			seqToUnseq = append(seqToUnseq, byte(i))
		}
	}
	nInUse := len(seqToUnseq)

	bwtBuf := append([]byte(nil), block...)
	ptr, usedFallback := encodeBWT(bwtBuf, c.cfg.WorkFactor)

	seqAlpha := make([]byte, nInUse)
	for i := range seqAlpha {
		seqAlpha[i] = byte(i)
	}
	var mtf moveToFront
	mtf.init(seqAlpha)
	alphaSize := nInUse + 2
	mtfFreq := make([]int32, alphaSize)
	mtfSyms := make([]uint16, 0, len(bwtBuf)+2)
	zPend := 0
	for _, b := range bwtBuf {
		seq := unseqToSeq[b]
		pos := mtf.encodeStep(seq)
		if pos == 0 {
			zPend++
			continue
		}
		for _, s := range runLengthSymbols(zPend) {
			mtfSyms = append(mtfSyms, s)
			mtfFreq[s]++
		}
		zPend = 0
		sym := uint16(pos + 1)
		mtfSyms = append(mtfSyms, sym)
		mtfFreq[sym]++
	}
	for _, s := range runLengthSymbols(zPend) {
		mtfSyms = append(mtfSyms, s)
		mtfFreq[s]++
	}
	eob := uint16(nInUse + 1)
	mtfSyms = append(mtfSyms, eob)
	mtfFreq[eob]++

	groups, selectors := optimizeHuffmanGroups(mtfSyms, mtfFreq, alphaSize)
	nGroups := len(groups)
	mtfSel := selectorMTF(selectors, nGroups)

	c.bw.writeBits64(magicBits, blkMagic)
	finalCRC := ^c.blockCRC
	c.bw.writeBits64(32, uint64(finalCRC))
	c.combinedCRC = rotl32By1(c.combinedCRC) ^ finalCRC

	if c.cfg.Verbosity >= 2 && c.cfg.Verbose != nil {
		fmt.Fprintf(c.cfg.Verbose, "   block %d: crc = 0x%08x, combined CRC = 0x%08x, size = %d\n",
			c.blockNo+1, finalCRC, c.combinedCRC, c.nblock)
	}

	c.bw.writeBits(1, 0) // randomisation bit: never set (the decoder's dpRandBit phase rejects a set bit with ErrDeprecated)
	c.bw.writeBits(24, uint32(ptr))

	var used16 [16]bool
	for i := 0; i < 256; i++ {
		if inUse[i] {
			used16[i/16] = true
		}
	}
	for i := 0; i < 16; i++ {
		if used16[i] {
			c.bw.writeBits(1, 1)
		} else {
			c.bw.writeBits(1, 0)
		}
	}
	for i := 0; i < 16; i++ {
		if !used16[i] {
			continue
		}
		for j := 0; j < 16; j++ {
			if inUse[i*16+j] {
				c.bw.writeBits(1, 1)
			} else {
				c.bw.writeBits(1, 0)
			}
		}
	}

	c.bw.writeBits(3, uint32(nGroups))
	c.bw.writeBits(15, uint32(len(selectors)))
	for _, s := range mtfSel {
		c.bw.writeUnary(int(s))
	}

	for _, g := range groups {
		writeLengths(&c.bw, g.lens)
	}

	gs := 0
	for _, sel := range selectors {
		ge := gs + numBlockSyms
		if ge > len(mtfSyms) {
			ge = len(mtfSyms)
		}
		g := groups[sel]
		for _, sym := range mtfSyms[gs:ge] {
			c.bw.writeBits(uint(g.lens[sym]), g.codes[sym])
		}
		gs = ge
	}

	if c.cfg.Metrics != nil {
		// encodeBWT only tries the main sort for blocks of 10000 bytes or
		// more, so a fallback on such a block means its budget ran out.
		budgetBlown := usedFallback && len(bwtBuf) >= 10000
		c.cfg.Metrics.observeBlock("compress", usedFallback, budgetBlown)
	}

	c.outBuf = append(c.outBuf, c.bw.buf...)
	c.bw.buf = c.bw.buf[:0]
}

// writeLengths packs one table's code lengths using the initial-5-bits plus
// 10/11-delta encoding of spec §4.6 step 6.
func writeLengths(bw *bitWriter, lens []uint8) {
	curr := int(lens[0])
	bw.writeBits(5, uint32(curr))
	for _, l := range lens {
		for curr < int(l) {
			bw.writeBits(2, 0b10)
			curr++
		}
		for curr > int(l) {
			bw.writeBits(2, 0b11)
			curr--
		}
		bw.writeBits(1, 0)
	}
}

// writeTrailer appends the end-of-stream magic and combined CRC, then
// flushes any trailing partial byte (spec §6 "Stream trailer").
func (c *Compressor) writeTrailer() {
	c.bw.writeBits64(magicBits, endMagic)
	c.bw.writeBits64(32, uint64(c.combinedCRC))
	c.bw.finish()
	c.outBuf = append(c.outBuf, c.bw.buf...)
	c.bw.buf = c.bw.buf[:0]

	if c.cfg.Verbosity >= 2 && c.cfg.Verbose != nil {
		fmt.Fprintf(c.cfg.Verbose, "    final combined CRC = 0x%08x\n", c.combinedCRC)
		if c.totalIn > 0 {
			// Mirror the reference's ratio print literally (spec.md §9 Open
			// Question 1): not special-cased when the block grew, so an
			// input that grew reports a negative saved percentage rather
			// than being clamped to 0.00%.
			totalOut := c.totalOut + int64(len(c.outBuf)-c.outPos)
			saved := (1 - float64(totalOut)/float64(c.totalIn)) * 100
			fmt.Fprintf(c.cfg.Verbose, "    %5.2f%% saved, %d in, %d out.\n", saved, c.totalIn, totalOut)
		}
	}
}

// drain copies as much of the pending packed output as fits in out.
func (c *Compressor) drain(out []byte) int {
	avail := len(c.outBuf) - c.outPos
	n := avail
	if n > len(out) {
		n = len(out)
	}
	copy(out, c.outBuf[c.outPos:c.outPos+n])
	c.outPos += n
	if c.outPos == len(c.outBuf) {
		c.outBuf = c.outBuf[:0]
		c.outPos = 0
	}
	return n
}

func (c *Compressor) pendingEmpty() bool { return len(c.outBuf) == 0 }

// TotalIn reports the total number of input bytes consumed since Init
// (spec §3 "total_in_{lo,hi}32", collapsed here into a single 64-bit
// counter since Go has no need of the reference implementation's
// hi32/lo32 split).
func (c *Compressor) TotalIn() int64 { return c.totalIn }

// TotalOut reports the total number of compressed bytes produced since
// Init.
func (c *Compressor) TotalOut() int64 { return c.totalOut }
