package htsfile

import (
	"bufio"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// Mode determines how a File is opened and which operations are valid on it.
// A File keeps its mode for its entire lifetime.
type Mode int

const (
	// ModeRead opens an existing SAM or BAM file for sequential or indexed
	// reading. The on-disk format is autodetected.
	ModeRead Mode = iota
	// ModeWriteBAM creates a bgzf-compressed BAM file.
	ModeWriteBAM
	// ModeWriteSAM creates a SAM text file.
	ModeWriteSAM
)

// ParseMode maps an htslib-style mode string to a Mode. Recognized values
// are "r", "wb" and "w".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "r":
		return ModeRead, true
	case "wb":
		return ModeWriteBAM, true
	case "w":
		return ModeWriteSAM, true
	}
	return ModeRead, false
}

// String returns the htslib mode string for m.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWriteBAM:
		return "wb"
	case ModeWriteSAM:
		return "w"
	}
	return "?"
}

// StdioPath is the filename denoting the process's standard input or output
// stream, depending on the open mode.
const StdioPath = "-"

// Opts defines options for Open.
type Opts struct {
	// Index is the pathname of the BAI index consulted by LoadIndex. If "",
	// the default search order is path + ".bai", then path with a trailing
	// ".bam" replaced by ".bai".
	Index string

	// CompressionLevel is the gzip level used when writing BAM, from
	// gzip.BestSpeed to gzip.BestCompression. Zero is reserved and selects
	// gzip.DefaultCompression, so an uncompressed (gzip.NoCompression) BAM
	// cannot be requested through Opts.
	CompressionLevel int
}

// File is one open alignment file. It owns the underlying stream, the
// header, the current native record, and any loaded index or active region
// iterator. Not safe for concurrent use.
type File struct {
	path string
	mode Mode
	opts Opts

	in  file.File
	out file.File

	bamr *bam.Reader
	samr *sam.Reader
	bamw *bam.Writer
	samw *sam.Writer
	w    io.Writer

	header    *sam.Header
	refByName map[string]*sam.Reference

	// native holds the record most recently read through this handle. It is
	// recycled on the next read; ParseRecord copies it out.
	native *sam.Record

	index *bam.Index
	iter  *bam.Iterator
	// Current region query, half-open zero-based coordinates.
	regionRef    *sam.Reference
	regionStart  int
	regionEnd    int
	regionEmpty  bool
	regionActive bool

	atEnd  bool
	err    error // sticky stream error, nil for clean EOF
	closed bool
}

func mergeOpts(optList []Opts) Opts {
	opts := Opts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
		if o.CompressionLevel != 0 {
			opts.CompressionLevel = o.CompressionLevel
		}
	}
	return opts
}

// Open opens path in the given mode. In ModeRead the header is read
// immediately; a missing or corrupt header is an open error. In the write
// modes no I/O happens until WriteHeader. Path "-" means the standard
// input or output stream. A File must not be reused after Close; open a
// fresh one instead.
func Open(path string, mode Mode, optList ...Opts) (*File, error) {
	f := &File{path: path, mode: mode, opts: mergeOpts(optList)}
	switch mode {
	case ModeRead:
		if err := f.openRead(); err != nil {
			return nil, err
		}
	case ModeWriteBAM, ModeWriteSAM:
		if err := f.openWrite(); err != nil {
			return nil, err
		}
	default:
		log.Panicf("htsfile.Open %s: invalid mode %d", path, mode)
	}
	return f, nil
}

// OpenRead opens path for reading ("r").
func OpenRead(path string, optList ...Opts) (*File, error) {
	return Open(path, ModeRead, optList...)
}

// Create opens path for BAM writing ("wb").
func Create(path string, optList ...Opts) (*File, error) {
	return Open(path, ModeWriteBAM, optList...)
}

// CreateSAM opens path for SAM text writing ("w").
func CreateSAM(path string, optList ...Opts) (*File, error) {
	return Open(path, ModeWriteSAM, optList...)
}

// BAM files are bgzf streams, so they start with the gzip magic. Anything
// else is treated as SAM text.
func isBGZF(magic []byte) bool {
	return len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b
}

func (f *File) openRead() error {
	var r io.Reader
	if f.path == StdioPath {
		br := bufio.NewReader(os.Stdin)
		magic, err := br.Peek(2)
		if err != nil {
			return errors.E(err, "open standard input")
		}
		if !isBGZF(magic) {
			sr, err := sam.NewReader(br)
			if err != nil {
				return errors.E(err, "open standard input")
			}
			f.samr = sr
			f.header = sr.Header()
		}
		r = br
	} else {
		ctx := vcontext.Background()
		in, err := file.Open(ctx, f.path)
		if err != nil {
			return errors.E(err, "open", f.path)
		}
		f.in = in
		rs := in.Reader(ctx)
		magic := make([]byte, 2)
		if _, err := io.ReadFull(rs, magic); err != nil {
			f.in.Close(ctx) // nolint: errcheck
			f.in = nil
			return errors.E(err, "open", f.path)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			f.in.Close(ctx) // nolint: errcheck
			f.in = nil
			return errors.E(err, "open", f.path)
		}
		if !isBGZF(magic) {
			sr, err := sam.NewReader(rs)
			if err != nil {
				f.in.Close(ctx) // nolint: errcheck
				f.in = nil
				return errors.E(err, "read header", f.path)
			}
			f.samr = sr
			f.header = sr.Header()
		}
		r = rs
	}
	if f.samr == nil {
		br, err := bam.NewReader(r, 1)
		if err != nil {
			if f.in != nil {
				f.in.Close(vcontext.Background()) // nolint: errcheck
				f.in = nil
			}
			return errors.E(err, "read header", f.path)
		}
		f.bamr = br
		f.header = br.Header()
	}
	f.refByName = refsByName(f.header)
	return nil
}

func (f *File) openWrite() error {
	if f.path == StdioPath {
		f.w = os.Stdout
		return nil
	}
	ctx := vcontext.Background()
	out, err := file.Create(ctx, f.path)
	if err != nil {
		return errors.E(err, "create", f.path)
	}
	f.out = out
	f.w = out.Writer(ctx)
	return nil
}

// Path returns the filename the File was opened with.
func (f *File) Path() string { return f.path }

// Mode returns the mode the File was opened in.
func (f *File) Mode() Mode { return f.mode }

// Header returns the File's header. In read mode it is non-nil from Open
// on; in write mode it is nil until SetHeader or CopyHeaderFrom.
func (f *File) Header() *sam.Header { return f.header }

// SetHeader installs h as the File's header, replacing any prior one. The
// File retains h; use CopyHeaderFrom to install an independent copy.
func (f *File) SetHeader(h *sam.Header) {
	f.header = h
	f.refByName = refsByName(h)
}

// CopyHeaderFrom deep-copies src's header into f, replacing any header f
// previously held. Used to propagate the header from an input File to an
// output File before writing.
func (f *File) CopyHeaderFrom(src *File) error {
	if src.header == nil {
		return errors.E("copy header:", src.path, "has no header")
	}
	f.SetHeader(src.header.Clone())
	return nil
}

// WriteHeader writes the header at the start of the record stream. Valid
// exactly once, on a write-mode File with a non-nil header.
func (f *File) WriteHeader() error {
	if f.closed || f.mode == ModeRead || f.bamw != nil || f.samw != nil {
		log.Panicf("htsfile %s: WriteHeader on a %q handle (closed=%v, header written=%v)",
			f.path, f.mode, f.closed, f.bamw != nil || f.samw != nil)
	}
	if f.header == nil {
		log.Panicf("htsfile %s: WriteHeader with no header set", f.path)
	}
	if f.mode == ModeWriteSAM {
		sw, err := sam.NewWriter(f.w, f.header, sam.FlagDecimal)
		if err != nil {
			return errors.E(err, "write header", f.path)
		}
		f.samw = sw
		return nil
	}
	level := f.opts.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}
	bw, err := bam.NewWriterLevel(f.w, f.header, level, 1)
	if err != nil {
		return errors.E(err, "write header", f.path)
	}
	f.bamw = bw
	return nil
}

// recycle releases the previous native record back to the codec's free
// pool. Callers must have copied out anything they want to keep.
func (f *File) recycle(rec *sam.Record) {
	if f.native != nil {
		sam.PutInFreePool(f.native)
	}
	f.native = rec
}

// ReadNative reads the next record from the stream and returns the File's
// native record. The returned record is owned by the File and is valid only
// until the next read; copy it out with ParseRecord to keep it. Returns
// io.EOF at clean end of stream and the codec's error otherwise; either way
// the File latches into the at-end state and subsequent calls fail the
// same way.
func (f *File) ReadNative() (*sam.Record, error) {
	if f.closed || f.mode != ModeRead {
		log.Panicf("htsfile %s: read on a %q handle (closed=%v)", f.path, f.mode, f.closed)
	}
	if f.atEnd {
		return nil, f.endErr()
	}
	var rec *sam.Record
	var err error
	if f.bamr != nil {
		rec, err = f.bamr.Read()
	} else {
		rec, err = f.samr.Read()
	}
	if err != nil {
		f.atEnd = true
		if err != io.EOF {
			f.err = err
		}
		return nil, err
	}
	f.recycle(rec)
	return rec, nil
}

// Read reads the next record and copies it out into an owned Record. On
// end of stream or error the returned Record is the zero value.
func (f *File) Read() (Record, error) {
	rec, err := f.ReadNative()
	if err != nil {
		return Record{}, err
	}
	return ParseRecord(rec), nil
}

func (f *File) endErr() error {
	if f.err != nil {
		return f.err
	}
	return io.EOF
}

// AtEnd reports whether a sequential read has failed on this File. Once
// true it never reverts.
func (f *File) AtEnd() bool { return f.atEnd }

// Err returns the I/O error that ended sequential reading, or nil if the
// stream ended cleanly (or has not ended).
func (f *File) Err() error { return f.err }

// WriteNative writes rec to the stream. WriteHeader must have been called.
func (f *File) WriteNative(rec *sam.Record) error {
	if f.closed || f.mode == ModeRead || (f.bamw == nil && f.samw == nil) {
		log.Panicf("htsfile %s: write on a %q handle (closed=%v, header written=%v)",
			f.path, f.mode, f.closed, f.bamw != nil || f.samw != nil)
	}
	var err error
	if f.bamw != nil {
		err = f.bamw.Write(rec)
	} else {
		err = f.samw.Write(rec)
	}
	if err != nil {
		return errors.E(err, "write record", f.path)
	}
	return nil
}

// WriteRecord translates r into the File's native representation, resolving
// reference names against the File's header, and writes it. A reference
// name absent from the header is reported as an error before anything is
// written.
func (f *File) WriteRecord(r Record) error {
	if f.header == nil {
		log.Panicf("htsfile %s: WriteRecord with no header set", f.path)
	}
	rec, err := r.native(f.refByName)
	if err != nil {
		return err
	}
	f.recycle(rec)
	return f.WriteNative(rec)
}

// CopyRecordFrom replaces f's native record with a deep copy of src's. The
// copy is unaffected by subsequent reads on src.
func (f *File) CopyRecordFrom(src *File) {
	if src.native == nil {
		return
	}
	f.recycle(cloneNative(src.native))
}

// Native returns the File's current native record, or nil if nothing has
// been read or copied in. Valid only until the next read on f.
func (f *File) Native() *sam.Record { return f.native }

// Close releases the stream, header, native record, index and any active
// region iterator. Closing an already-closed File is a no-op.
func (f *File) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	var firstErr error
	setErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.clearRegion()
	if f.bamw != nil {
		setErr(f.bamw.Close())
		f.bamw = nil
	}
	f.samw = nil
	if f.bamr != nil {
		setErr(f.bamr.Close())
		f.bamr = nil
	}
	f.samr = nil
	ctx := vcontext.Background()
	if f.in != nil {
		setErr(f.in.Close(ctx))
		f.in = nil
	}
	if f.out != nil {
		setErr(f.out.Close(ctx))
		f.out = nil
	}
	if f.native != nil {
		sam.PutInFreePool(f.native)
		f.native = nil
	}
	f.index = nil
	f.header = nil
	f.refByName = nil
	if firstErr != nil {
		return errors.E(firstErr, "close", f.path)
	}
	return nil
}
