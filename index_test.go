package htsfile_test

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/htsfile"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndLoadIndex(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "a.bam")
	writeTestFile(t, path, htsfile.ModeWriteBAM, []htsfile.Record{
		newRecord("a", "chr1", 10),
		newRecord("b", "chr2", 20),
	})
	require.NoError(t, htsfile.BuildIndex(path, "", 0))

	f, err := htsfile.OpenRead(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	require.False(t, f.HasIndex())
	require.NoError(t, f.LoadIndex())
	require.True(t, f.HasIndex())

	require.NoError(t, f.SetRegionText("chr2"))
	rec, err := f.ReadRegion()
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Name)
}

// The default index search also accepts x.bai next to x.bam.
func TestLoadIndexFallbackPath(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "a.bam")
	writeTestFile(t, path, htsfile.ModeWriteBAM, []htsfile.Record{newRecord("a", "chr1", 10)})
	require.NoError(t, htsfile.BuildIndex(path, filepath.Join(tmpDir, "a.bai"), 0))

	f, err := htsfile.OpenRead(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	require.NoError(t, f.LoadIndex())
	assert.True(t, f.HasIndex())
}

func TestIndexPathOption(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "a.bam")
	indexPath := filepath.Join(tmpDir, "custom.index")
	writeTestFile(t, path, htsfile.ModeWriteBAM, []htsfile.Record{newRecord("a", "chr1", 10)})

	f, err := htsfile.OpenRead(path, htsfile.Opts{Index: indexPath})
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	require.NoError(t, f.BuildIndex(0))
	require.NoError(t, f.LoadIndex())
	assert.True(t, f.HasIndex())
}

// A BAI only ever pairs with a BAM stream. Loading one onto a SAM text
// handle fails recoverably instead of arming an unusable query.
func TestLoadIndexOnSAMHandle(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	recs := []htsfile.Record{
		newRecord("a", "chr1", 10),
		newRecord("b", "chr1", 20),
	}
	bamPath := filepath.Join(tmpDir, "a.bam")
	writeTestFile(t, bamPath, htsfile.ModeWriteBAM, recs)
	require.NoError(t, htsfile.BuildIndex(bamPath, "", 0))
	samPath := filepath.Join(tmpDir, "a.sam")
	writeTestFile(t, samPath, htsfile.ModeWriteSAM, recs)

	f, err := htsfile.OpenRead(samPath)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	require.Error(t, f.LoadIndexPath(bamPath+".bai"))
	assert.False(t, f.HasIndex())

	// The handle still reads sequentially.
	assert.Equal(t, []string{"a", "b"}, names(readAll(t, f)))
}

func TestLoadIndexMissing(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "a.bam")
	writeTestFile(t, path, htsfile.ModeWriteBAM, nil)

	f, err := htsfile.OpenRead(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	require.Error(t, f.LoadIndex())
	assert.False(t, f.HasIndex())
}

func TestBuildIndexUnsupportedShift(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "a.bam")
	writeTestFile(t, path, htsfile.ModeWriteBAM, nil)

	require.Error(t, htsfile.BuildIndex(path, "", 5))
	require.NoError(t, htsfile.BuildIndex(path, "", 14))
}

func TestBuildIndexMissingFile(t *testing.T) {
	require.Error(t, htsfile.BuildIndex("/no/such/file.bam", "", 0))
}
