package htsfile

import (
	"io"
	"regexp"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// ErrNoIndex is returned by SetRegion when no index has been loaded for the
// File. The File stays usable for sequential reading.
var ErrNoIndex = errors.New("htsfile: no index loaded")

// Region is a genomic coordinate interval: a reference sequence name and a
// 0-based, half-open [Start, End) position range. End == 0 means through
// the end of the reference.
type Region struct {
	Ref        string
	Start, End int
}

// ref, ref:start or ref:start-end with 1-based coordinates.
var regionRE = regexp.MustCompile(`^([^:]+)(?::(\d+)(?:-(\d+))?)?$`)

// ParseRegion parses the samtools-style textual region shorthand: "chr1",
// "chr1:100" or "chr1:100-200", with 1-based inclusive coordinates. The
// result uses Region's 0-based half-open convention.
func ParseRegion(text string) (Region, error) {
	m := regionRE.FindStringSubmatch(text)
	if m == nil {
		return Region{}, errors.Errorf("region %q: must be of form 'chr', 'chr:start' or 'chr:start-end'", text)
	}
	r := Region{Ref: m[1]}
	if m[2] != "" {
		start, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return Region{}, errors.Wrapf(err, "region %q: bad start", text)
		}
		if start < 1 {
			return Region{}, errors.Errorf("region %q: coordinates are 1-based", text)
		}
		r.Start = int(start) - 1
	}
	if m[3] != "" {
		end, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return Region{}, errors.Wrapf(err, "region %q: bad end", text)
		}
		// 1-based inclusive end equals 0-based exclusive end.
		r.End = int(end)
		if r.End <= r.Start {
			return Region{}, errors.Errorf("region %q: empty interval", text)
		}
	}
	return r, nil
}

// beginRegion checks that f can be queried and destroys any previously
// active iterator. Every SetRegion variant calls it before resolving its
// arguments: the prior query is superseded even when the new one fails.
func (f *File) beginRegion() {
	if f.closed || f.mode != ModeRead {
		log.Panicf("htsfile %s: region query on a %q handle (closed=%v)", f.path, f.mode, f.closed)
	}
	f.clearRegion()
}

// SetRegionText parses text with ParseRegion and queries the resulting
// region.
func (f *File) SetRegionText(text string) error {
	f.beginRegion()
	region, err := ParseRegion(text)
	if err != nil {
		return err
	}
	return f.SetRegion(region)
}

// SetRegion starts a region query, destroying any previously active one,
// whether or not the new query succeeds. It fails, leaving the File's
// sequential-read state untouched, if no index is loaded or the region
// does not resolve against the header. On success ReadRegion yields the
// records overlapping the region in file order; the sequence is finite
// and not restartable (call SetRegion again to re-query).
func (f *File) SetRegion(region Region) error {
	f.beginRegion()
	ref, ok := f.refByName[region.Ref]
	if !ok {
		return errors.Errorf("htsfile %s: reference %q not in header", f.path, region.Ref)
	}
	return f.setRegionRef(ref, region.Start, region.End)
}

// SetRegionID is SetRegion for a numeric reference ID, with 0-based
// half-open coordinates.
func (f *File) SetRegionID(id, start, end int) error {
	f.beginRegion()
	refs := f.header.Refs()
	if id < 0 || id >= len(refs) {
		return errors.Errorf("htsfile %s: reference id %d out of range", f.path, id)
	}
	return f.setRegionRef(refs[id], start, end)
}

func (f *File) setRegionRef(ref *sam.Reference, start, end int) error {
	if f.index == nil {
		return ErrNoIndex
	}
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > ref.Len() {
		end = ref.Len()
	}
	if start >= end {
		return errors.Errorf("htsfile %s: empty region %s:%d-%d", f.path, ref.Name(), start, end)
	}

	chunks, err := f.index.Chunks(ref, start, end)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads anywhere on this span. The query itself is fine; it is
		// just empty.
		f.regionRef, f.regionStart, f.regionEnd = ref, start, end
		f.regionEmpty = true
		f.regionActive = true
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "htsfile %s: region %s:%d-%d", f.path, ref.Name(), start, end)
	}
	iter, err := bam.NewIterator(f.bamr, chunks)
	if err != nil {
		return errors.Wrapf(err, "htsfile %s: region %s:%d-%d", f.path, ref.Name(), start, end)
	}
	f.iter = iter
	f.regionRef, f.regionStart, f.regionEnd = ref, start, end
	f.regionActive = true
	return nil
}

func (f *File) clearRegion() {
	f.iter = nil
	f.regionRef = nil
	f.regionEmpty = false
	f.regionActive = false
}

// ReadRegionNative advances the active region query and returns the File's
// native record, valid until the next read. Returns io.EOF when the region
// is exhausted. Calling it with no active query is a usage error.
func (f *File) ReadRegionNative() (*sam.Record, error) {
	if !f.regionActive {
		log.Panicf("htsfile %s: ReadRegion with no active region query", f.path)
	}
	if f.regionEmpty {
		return nil, io.EOF
	}
	for f.iter.Next() {
		rec := f.iter.Record()
		// Chunks are bin-granular: skip neighbours that do not overlap
		// [start, end). Records are in coordinate order, so the first one at
		// or past the end finishes the query.
		if rec.Ref == nil || rec.Ref.ID() != f.regionRef.ID() {
			continue
		}
		if rec.Pos >= f.regionEnd {
			break
		}
		if rec.End() <= f.regionStart {
			continue
		}
		f.recycle(rec)
		return rec, nil
	}
	if err := f.iter.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// ReadRegion advances the active region query and copies the record out.
// On exhaustion or error the returned Record is the zero value.
func (f *File) ReadRegion() (Record, error) {
	rec, err := f.ReadRegionNative()
	if err != nil {
		return Record{}, err
	}
	return ParseRecord(rec), nil
}
