package bzip2

import "io"

// Reader adapts a Decompressor to io.Reader, the way the teacher's own
// reader.go wraps its decoder around an io.Reader source. It also
// implements the concatenated-stream behavior the teacher's reader.go
// left as an unfinished TODO ("Handle multiple bzip2 files back-to-back"):
// once a Decompressor reports StatusStreamEnd, Reader checks whether the
// underlying source has more bytes and, if so, calls Decompressor.Reset
// and keeps decoding, satisfying the multistream testable property of
// spec §8.
type Reader struct {
	InputOffset  int64
	OutputOffset int64

	r   io.Reader
	d   *Decompressor
	cfg DecompressConfig
	err error

	inbuf  [32 * 1024]byte
	inLen  int
	inPos  int
	srcEOF bool
}

// ReaderConfig configures a Reader; the zero value selects ModeAuto
// decoding and default verbosity.
type ReaderConfig struct {
	Mode      DecodeMode
	Verbosity int
	Verbose   io.Writer
	Metrics   *Metrics
}

// NewReader returns a Reader reading a bzip2 stream from r.
func NewReader(r io.Reader, conf *ReaderConfig) (*Reader, error) {
	zr := new(Reader)
	if conf != nil {
		zr.cfg = DecompressConfig{
			Mode:      conf.Mode,
			Verbosity: conf.Verbosity,
			Verbose:   conf.Verbose,
			Metrics:   conf.Metrics,
		}
	}
	d, err := NewDecompressor(zr.cfg)
	if err != nil {
		return nil, err
	}
	zr.d = d
	zr.Reset(r)
	return zr, nil
}

// Reset discards the Reader's state and configures it to read from r.
func (zr *Reader) Reset(r io.Reader) {
	zr.r = r
	zr.InputOffset, zr.OutputOffset = 0, 0
	zr.err = nil
	zr.inLen, zr.inPos = 0, 0
	zr.srcEOF = false
	d, _ := NewDecompressor(zr.cfg)
	zr.d = d
}

func (zr *Reader) Read(buf []byte) (int, error) {
	if zr.err != nil {
		return 0, zr.err
	}
	for {
		if zr.inPos == zr.inLen && !zr.srcEOF {
			n, err := zr.r.Read(zr.inbuf[:])
			zr.inLen, zr.inPos = n, 0
			if n == 0 && err != nil {
				zr.srcEOF = true
			} else if err != nil && err != io.EOF {
				zr.err = err
				return 0, err
			}
		}

		consumed, produced, status, err := zr.d.Process(zr.inbuf[zr.inPos:zr.inLen], buf)
		zr.inPos += consumed
		zr.InputOffset += int64(consumed)
		zr.OutputOffset += int64(produced)

		if err != nil {
			zr.err = err
			return produced, err
		}
		if produced > 0 {
			return produced, nil
		}
		if status == StatusStreamEnd {
			if zr.inPos == zr.inLen && !zr.srcEOF {
				n, rerr := zr.r.Read(zr.inbuf[:])
				zr.inLen, zr.inPos = n, 0
				if n == 0 && rerr != nil {
					zr.srcEOF = true
				} else if rerr != nil && rerr != io.EOF {
					zr.err = rerr
					return 0, rerr
				}
			}
			if zr.inPos < zr.inLen {
				zr.d.Reset()
				continue
			}
			zr.err = io.EOF
			return 0, io.EOF
		}
		if zr.inPos == zr.inLen && zr.srcEOF {
			zr.err = ErrUnexpectedEOF
			return 0, zr.err
		}
	}
}

func (zr *Reader) Close() error {
	if zr.err == io.EOF || zr.err == ErrClosed {
		zr.err = ErrClosed
		return nil
	}
	return zr.d.End()
}
