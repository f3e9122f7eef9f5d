package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/htsfile"
)

type viewFlags struct {
	index      *string
	headerOnly *bool
	withHeader *bool
	regions    *string
}

func view(flags viewFlags, path string) error {
	f, err := htsfile.OpenRead(path, htsfile.Opts{Index: *flags.index})
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	if *flags.headerOnly || *flags.withHeader {
		text, err := f.Header().MarshalText()
		if err != nil {
			return err
		}
		fmt.Print(string(text))
		if *flags.headerOnly {
			return nil
		}
	}

	if *flags.regions == "" {
		for {
			rec, err := f.ReadNative()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := printRecord(rec); err != nil {
				return err
			}
		}
		return f.Close()
	}

	if err := f.LoadIndex(); err != nil {
		return err
	}
	for _, text := range strings.Split(*flags.regions, ",") {
		if err := f.SetRegionText(text); err != nil {
			return err
		}
		for {
			rec, err := f.ReadRegionNative()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := printRecord(rec); err != nil {
				return err
			}
		}
	}
	return f.Close()
}

func printRecord(rec *sam.Record) error {
	s, err := rec.MarshalText()
	if err != nil {
		return err
	}
	fmt.Print(string(s), "\n")
	return nil
}
