package bzip2

import "github.com/klauspost/cpuid/v2"

// DecodeMode selects between the reference implementation's two decoder
// strategies (spec §4.8 "Fast mode" / "Small mode"): Fast keeps the full
// O(n) tt[] linked-list inverse-BWT array resident for the block, while
// Small recomputes positions on the fly at roughly four times the CPU cost
// in exchange for a much smaller working set. Both produce byte-identical
// output; the choice is purely a time/space trade.
type DecodeMode int

const (
	// ModeAuto picks Fast or Small based on the host's cache size, the same
	// heuristic DefaultMode implements.
	ModeAuto DecodeMode = iota
	ModeFast
	ModeSmall
)

// DefaultMode reports the DecodeMode a Decompressor uses when its Config
// leaves Mode at ModeAuto. It favors Fast unless the host's last-level
// cache is small enough that a resident tt[] array for the configured
// block size would likely thrash it, mirroring the density-vs-footprint
// trade the reference implementation leaves as a compile-time choice
// (BZ_DECOMPRESS_SMALL) but deciding it at runtime instead, grounded in the
// teacher repo's own use of klauspost/cpuid for runtime CPU feature
// detection (see go.mod).
func DefaultMode(blockSize BlockSize) DecodeMode {
	llc := cpuid.CPU.Cache.L3
	if llc <= 0 {
		llc = cpuid.CPU.Cache.L2
	}
	need := int(blockSize) * blockSize100kUnit * 4 // tt[] is 4 bytes/block byte
	if llc > 0 && need > llc {
		return ModeSmall
	}
	return ModeFast
}

func (m DecodeMode) resolve(blockSize BlockSize) DecodeMode {
	if m == ModeAuto {
		return DefaultMode(blockSize)
	}
	return m
}
