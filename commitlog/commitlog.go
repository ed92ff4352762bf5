// Package commitlog stores committed transactions in append-only segment
// files.
//
// A log is a directory of segments. Each segment starts with a checksummed
// header and holds consecutive records; a record is one committed
// transaction, opaque to this package. Records are numbered by a global
// offset that continues across segments.
//
// File format:
//
//   - segment = segmentHeader record*
//   - segmentHeader = magic:64 version:8 pad:24 ordinal:32 firstOffset:64 timestamp:32 pad:32 invariant:256 checksum:64
//   - record = size:uvarint tsDelta:uvarint data:size checksum:64
//
// The record checksum is xxhash of everything before it in the record. A
// torn or corrupted record ends the log: Open truncates the last segment
// there, and Replay stops there.
package commitlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrIncompatible       = errors.New("incompatible commit log")
	ErrUnsupportedVersion = errors.New("unsupported commit log version")
	ErrClosed             = errors.New("commit log closed")
	errCorrupted          = errors.New("corrupted commit log data")
)

type Options struct {
	FileName    string // e.g. "commits-*.log"
	MaxFileSize int64  // start a new segment after this size

	// Invariant ties the log to what produced it, for example a hash of the
	// module description. Opening a log written with a different invariant
	// fails with ErrIncompatible.
	Invariant [32]byte

	// Sync makes Append fsync the segment before returning.
	Sync bool

	Now     func() time.Time
	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 16 * 1024 * 1024

const (
	magic           = 0x474f4c43_42445453 // "STDBCLOG" as little-endian uint64
	version0  uint8 = 0
	maxRecLen       = 256 * 1024 * 1024
)

const segmentHeaderSize = 72

type segmentHeader struct {
	Magic       uint64
	Version     uint8
	_           [3]uint8
	Ordinal     uint32
	FirstOffset uint64
	Timestamp   uint32
	_           uint32
	Invariant   [32]byte
	Checksum    uint64
}

// Record is one transaction read back from the log.
type Record struct {
	Offset    uint64
	Timestamp time.Time
	Data      []byte
}

type Log struct {
	dir            string
	fileNamePrefix string
	fileNameSuffix string
	maxFileSize    int64
	invariant      [32]byte
	sync           bool
	now            func() time.Time
	logger         *slog.Logger
	verbose        bool

	mu         sync.Mutex
	closed     bool
	nextOffset uint64
	lastSeg    uint32
	seg        *segmentWriter
}

// Open opens or creates the log in dir. A corrupted tail of the newest
// segment is truncated away.
func Open(dir string, o Options) (*Log, error) {
	if o.FileName == "" {
		o.FileName = "commits-*.log"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	l := &Log{
		dir:            dir,
		fileNamePrefix: prefix,
		fileNameSuffix: suffix,
		maxFileSize:    o.MaxFileSize,
		invariant:      o.Invariant,
		sync:           o.Sync,
		now:            o.Now,
		logger:         o.Logger,
		verbose:        o.Verbose,
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

// NextOffset is the offset the next appended record will get.
func (l *Log) NextOffset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextOffset
}

func (l *Log) String() string {
	return "commitlog " + l.dir
}

func (l *Log) recover() error {
	for {
		names, err := l.segmentNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		last := names[len(names)-1]
		ord, _, err := parseSegmentName(strings.TrimSuffix(strings.TrimPrefix(last, l.fileNamePrefix), l.fileNameSuffix))
		if err != nil {
			return err
		}

		f, err := os.OpenFile(filepath.Join(l.dir, last), os.O_RDWR, 0)
		if err != nil {
			return err
		}
		var h segmentHeader
		err = l.readHeader(bufio.NewReader(f), &h, ord)
		if err == errCorrupted {
			f.Close()
			l.logger.Warn("commitlog: deleting segment with corrupted header", "file", last)
			if err := os.Remove(filepath.Join(l.dir, last)); err != nil {
				return fmt.Errorf("commitlog: deleting corrupted segment: %w", err)
			}
			continue
		} else if err != nil {
			f.Close()
			return err
		}

		if _, err := f.Seek(segmentHeaderSize, io.SeekStart); err != nil {
			f.Close()
			return err
		}
		sr := newSegmentReader(f, h)
		var n uint64
		for {
			_, err := sr.next()
			if err == io.EOF {
				break
			} else if err == errCorrupted {
				l.logger.Warn("commitlog: truncating corrupted tail", "file", last, "offset", h.FirstOffset+n, "pos", sr.pos)
				if err := f.Truncate(sr.pos); err != nil {
					f.Close()
					return err
				}
				break
			} else if err != nil {
				f.Close()
				return err
			}
			n++
		}
		f.Close()
		l.lastSeg = ord
		l.nextOffset = h.FirstOffset + n
		return nil
	}
}

func (l *Log) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		name := ent.Name()
		if !ent.Type().IsRegular() || !strings.HasPrefix(name, l.fileNamePrefix) || !strings.HasSuffix(name, l.fileNameSuffix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Append writes one record and returns its offset.
func (l *Log) Append(data []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	ts := l.nowSeconds()
	if l.seg != nil && l.seg.size >= l.maxFileSize {
		if err := l.seg.close(); err != nil {
			return 0, err
		}
		l.seg = nil
	}
	if l.seg == nil {
		sw, err := l.openSegmentForAppend(ts)
		if err != nil {
			return 0, err
		}
		l.seg = sw
	}

	off := l.nextOffset
	if err := l.seg.writeRecord(ts, data); err != nil {
		l.logger.Error("commitlog: append failed", "offset", off, "err", err)
		l.seg.close()
		l.seg = nil
		return 0, err
	}
	if l.sync {
		if err := l.seg.f.Sync(); err != nil {
			return 0, err
		}
	}
	l.nextOffset++
	if l.verbose {
		l.logger.Debug("commitlog: appended", "offset", off, "size", len(data))
	}
	return off, nil
}

// openSegmentForAppend continues the newest segment if it still has room,
// or starts the next one.
func (l *Log) openSegmentForAppend(ts uint32) (*segmentWriter, error) {
	names, err := l.segmentNames()
	if err != nil {
		return nil, err
	}
	if l.lastSeg != 0 && len(names) > 0 {
		last := names[len(names)-1]
		f, err := os.OpenFile(filepath.Join(l.dir, last), os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		var h segmentHeader
		if err := l.readHeader(bufio.NewReader(f), &h, l.lastSeg); err != nil {
			f.Close()
			return nil, err
		}
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, err
		}
		if size < l.maxFileSize {
			return &segmentWriter{f: f, ts: h.Timestamp, size: size}, nil
		}
		f.Close()
	}

	l.lastSeg++
	name := l.fileNamePrefix + formatSegmentName(l.lastSeg, l.nextOffset) + l.fileNameSuffix
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}
	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], segmentHeader{
		Magic:       magic,
		Version:     version0,
		Ordinal:     l.lastSeg,
		FirstOffset: l.nextOffset,
		Timestamp:   ts,
		Invariant:   l.invariant,
	})
	if _, err := f.Write(hbuf[:]); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &segmentWriter{f: f, ts: ts, size: segmentHeaderSize}, nil
}

// Replay calls fn for every intact record in offset order and returns how
// many were delivered. It stops quietly at the first corrupted record.
func (l *Log) Replay(fn func(rec Record) error) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	names, err := l.segmentNames()
	if err != nil {
		return 0, err
	}
	var n int
	expected := uint64(0)
	for i, name := range names {
		ord, _, err := parseSegmentName(strings.TrimSuffix(strings.TrimPrefix(name, l.fileNamePrefix), l.fileNameSuffix))
		if err != nil {
			return n, err
		}
		f, err := os.Open(filepath.Join(l.dir, name))
		if err != nil {
			return n, err
		}
		stop, err := l.replaySegment(f, ord, i == 0, &expected, &n, fn)
		f.Close()
		if err != nil || stop {
			return n, err
		}
	}
	return n, nil
}

func (l *Log) replaySegment(f *os.File, ord uint32, first bool, expected *uint64, n *int, fn func(rec Record) error) (stop bool, err error) {
	br := bufio.NewReader(f)
	var h segmentHeader
	err = l.readHeader(br, &h, ord)
	if err == errCorrupted {
		l.logger.Warn("commitlog: replay stopped at corrupted segment header", "segment", ord)
		return true, nil
	} else if err != nil {
		return true, err
	}
	if first {
		*expected = h.FirstOffset
	} else if h.FirstOffset != *expected {
		l.logger.Warn("commitlog: replay stopped at offset gap", "segment", ord, "expected", *expected, "found", h.FirstOffset)
		return true, nil
	}

	sr := newSegmentReader(br, h)
	for {
		rec, err := sr.next()
		if err == io.EOF {
			return false, nil
		} else if err == errCorrupted {
			l.logger.Warn("commitlog: replay stopped at corrupted record", "offset", *expected)
			return true, nil
		} else if err != nil {
			return true, err
		}
		rec.Offset = *expected
		if err := fn(rec); err != nil {
			return true, err
		}
		*expected++
		*n++
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.seg != nil {
		err := l.seg.close()
		l.seg = nil
		return err
	}
	return nil
}

func (l *Log) nowSeconds() uint32 {
	v := l.now().Unix()
	if v < 0 || uint64(v) > 0xFFFF_FFFF {
		panic("commitlog: clock out of range")
	}
	return uint32(v)
}

func (l *Log) readHeader(r io.Reader, h *segmentHeader, expectedOrd uint32) error {
	var buf [segmentHeaderSize]byte
	_, err := io.ReadFull(r, buf[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return errCorrupted
	} else if err != nil {
		return err
	}
	if _, err := binary.Decode(buf[:], binary.LittleEndian, h); err != nil {
		return err
	}
	if h.Magic != magic || xxhash.Sum64(buf[:segmentHeaderSize-8]) != h.Checksum {
		return errCorrupted
	}
	if h.Ordinal != expectedOrd {
		return errCorrupted
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.Invariant != l.invariant {
		return ErrIncompatible
	}
	return nil
}

func fillSegmentHeader(buf []byte, h segmentHeader) {
	n, err := binary.Encode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != segmentHeaderSize {
		panic("internal size mismatch")
	}
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-8:], xxhash.Sum64(buf[:segmentHeaderSize-8]))
}

type segmentWriter struct {
	f    *os.File
	ts   uint32
	size int64
	buf  []byte
}

func (sw *segmentWriter) writeRecord(ts uint32, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	b := sw.buf[:0]
	b = binary.AppendUvarint(b, uint64(len(data)))
	b = binary.AppendUvarint(b, uint64(tsDelta))
	b = append(b, data...)
	b = binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b))
	sw.buf = b

	n, err := sw.f.Write(b)
	sw.size += int64(n)
	return err
}

func (sw *segmentWriter) close() error {
	if sw.f == nil {
		return nil
	}
	err := sw.f.Close()
	sw.f = nil
	return err
}

type segmentReader struct {
	r   *bufio.Reader
	ts  uint32
	pos int64
	buf []byte
}

func newSegmentReader(r io.Reader, h segmentHeader) *segmentReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &segmentReader{r: br, ts: h.Timestamp, pos: segmentHeaderSize}
}

// next reads one record. It returns io.EOF at a clean end of segment and
// errCorrupted for a torn or damaged record.
func (sr *segmentReader) next() (Record, error) {
	b := sr.buf[:0]
	size, err := sr.uvarint(&b)
	if err == io.EOF && len(b) == 0 {
		return Record{}, io.EOF
	} else if err != nil {
		return Record{}, errCorrupted
	}
	if size > maxRecLen {
		return Record{}, errCorrupted
	}
	tsDelta, err := sr.uvarint(&b)
	if err != nil || tsDelta > 0xFFFF_FFFF {
		return Record{}, errCorrupted
	}
	hlen := len(b)
	b = slices.Grow(b, int(size)+8)[:hlen+int(size)+8]
	if _, err := io.ReadFull(sr.r, b[hlen:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, errCorrupted
		}
		return Record{}, err
	}
	body := b[:len(b)-8]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(b[len(b)-8:]) {
		return Record{}, errCorrupted
	}
	sr.buf = b
	sr.pos += int64(len(b))
	sr.ts += uint32(tsDelta)
	return Record{
		Timestamp: time.Unix(int64(sr.ts), 0).UTC(),
		Data:      slices.Clone(body[hlen:]),
	}, nil
}

func (sr *segmentReader) uvarint(b *[]byte) (uint64, error) {
	var v uint64
	for shift := 0; shift < 64; shift += 7 {
		c, err := sr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		*b = append(*b, c)
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, nil
		}
	}
	return 0, errCorrupted
}

func formatSegmentName(ord uint32, firstOffset uint64) string {
	return fmt.Sprintf("%010d-%016x", ord, firstOffset)
}

func parseSegmentName(name string) (ord uint32, firstOffset uint64, err error) {
	ordStr, offStr, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(ordStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid segment file name %q (invalid ordinal)", name)
	}
	firstOffset, err = strconv.ParseUint(offStr, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid segment file name %q (invalid offset)", name)
	}
	return uint32(v), firstOffset, nil
}
