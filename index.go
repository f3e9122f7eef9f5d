package htsfile

import (
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// The BAI linear index has a fixed 2^14 base interval width, so the only
// min-shift values the codec can honor are 0 (default) and 14.
const baiMinShift = 14

func indexPathCandidates(path string) []string {
	candidates := []string{path + ".bai"}
	if strings.HasSuffix(path, ".bam") {
		candidates = append(candidates, strings.TrimSuffix(path, ".bam")+".bai")
	}
	return candidates
}

// LoadIndex loads the BAI index associated with the File: the Index option
// if one was given, else path + ".bai", else path with ".bam" replaced by
// ".bai". Failure is recoverable; the File stays usable for sequential
// reading, with no index loaded.
func (f *File) LoadIndex() error {
	if f.opts.Index != "" {
		return f.LoadIndexPath(f.opts.Index)
	}
	if f.path == StdioPath {
		return errors.E("htsfile: no index for the standard input stream")
	}
	var firstErr error
	for _, path := range indexPathCandidates(f.path) {
		err := f.LoadIndexPath(path)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadIndexPath loads the BAI index at path, replacing any index the File
// previously held.
func (f *File) LoadIndexPath(path string) error {
	if f.closed || f.mode != ModeRead {
		log.Panicf("htsfile %s: LoadIndex on a %q handle (closed=%v)", f.path, f.mode, f.closed)
	}
	if f.bamr == nil {
		return errors.E("load index", f.path, "indexed queries need a BAM stream")
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "load index", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	index, err := bam.ReadIndex(in.Reader(ctx))
	if err != nil {
		return errors.E(err, "load index", path)
	}
	f.index = index
	return nil
}

// HasIndex reports whether an index is loaded.
func (f *File) HasIndex() bool { return f.index != nil }

// BuildIndex builds a BAI index for the coordinate-sorted BAM file at path
// and writes it to indexPath (path + ".bai" if empty). Sortedness is the
// codec's precondition: an unsorted file fails during the build. minShift
// tunes the interval granularity; zero selects the codec's default, and
// the BAI format supports no other granularity than its own (see
// baiMinShift).
func BuildIndex(path, indexPath string, minShift int) error {
	if minShift != 0 && minShift != baiMinShift {
		return errors.E("build index", path, "unsupported min shift (BAI supports only 14)")
	}
	if indexPath == "" {
		indexPath = path + ".bai"
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "build index", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "build index", path)
	}
	defer br.Close() // nolint: errcheck

	var index bam.Index
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "build index", path)
		}
		if err := index.Add(rec, br.LastChunk()); err != nil {
			return errors.E(err, "build index", path)
		}
		sam.PutInFreePool(rec)
	}

	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return errors.E(err, "build index", indexPath)
	}
	if err := bam.WriteIndex(out.Writer(ctx), &index); err != nil {
		out.Close(ctx) // nolint: errcheck
		return errors.E(err, "build index", indexPath)
	}
	if err := out.Close(ctx); err != nil {
		return errors.E(err, "build index", indexPath)
	}
	return nil
}

// BuildIndex builds a BAI for the File's filename with the default index
// path. It does not load the result; call LoadIndex for that.
func (f *File) BuildIndex(minShift int) error {
	return BuildIndex(f.path, f.opts.Index, minShift)
}
