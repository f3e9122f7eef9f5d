// Package htsfile provides uniform, resource-safe access to genomic
// alignment files (SAM and BAM) on top of github.com/grailbio/hts: opening a
// file for streaming read or write, reading and writing the shared header,
// iterating records sequentially, and seeking directly to the records
// overlapping a genomic region when a BAI index is present.
//
// A File owns one open stream, its header, and a single native record that
// is overwritten on every read. Callers that want to keep a record past the
// next read must copy it out with ParseRecord (or use File.Read, which does
// so). A File is not safe for concurrent use; callers needing parallel
// region scans should open independent Files.
package htsfile
