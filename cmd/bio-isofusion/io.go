package main

// This file defines evidenceWriter and readEvidence. evidenceWriter dumps the
// chimeric evidence collected from a BAM scan into a recordio file, and
// readEvidence replays it, so that candidates can be rebuilt (e.g. with a
// different reference or annotation) without rescanning the alignments.

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/isofusion/fusion"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "isofusionversion"
	fileVersion       = "ISOFUSION_V1"
)

// evidenceTrailer is stored in the trailer section of the recordio file.
type evidenceTrailer struct {
	// Opts are the options used for the scan.
	Opts fusion.Opts
	// Stats are the scan statistics.
	Stats fusion.Stats
	// Evidence is the number of records.
	Evidence int
}

type evidenceWriter struct {
	out file.File
	w   recordio.Writer
	n   int
}

func newEvidenceWriter(ctx context.Context, path string) (*evidenceWriter, error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	return &evidenceWriter{out: out, w: w}, nil
}

// Write appends one evidence record.
func (w *evidenceWriter) Write(ev *fusion.FragmentEvidence) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(ev); err != nil {
		return errors.E(err, "encode", ev.Name)
	}
	w.w.Append(b.Bytes())
	w.n++
	return nil
}

// WriteCandidates appends the evidence of every candidate, in candidate
// order.
func (w *evidenceWriter) WriteCandidates(cs []*fusion.FusionCandidate) error {
	for _, c := range cs {
		for _, t := range []fusion.FragmentType{fusion.MatchedJunction, fusion.Realigned, fusion.Discordant} {
			for _, ev := range c.Fragments(t) {
				if err := w.Write(ev); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Close writes the trailer and closes the file. It must be called exactly
// once.
func (w *evidenceWriter) Close(ctx context.Context, opts fusion.Opts, stats fusion.Stats) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(evidenceTrailer{Opts: opts, Stats: stats, Evidence: w.n}); err != nil {
		return errors.E(err, "encode trailer")
	}
	w.w.SetTrailer(b.Bytes())
	err := w.w.Finish()
	if e := w.out.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.E(err, "close", w.out.Name())
	}
	log.Printf("%s: wrote %d evidence records", w.out.Name(), w.n)
	return nil
}

// readEvidence calls fn on every evidence record of a file created by
// evidenceWriter, and returns its trailer.
func readEvidence(ctx context.Context, path string, fn func(*fusion.FragmentEvidence) error) (trailer evidenceTrailer, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return trailer, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			if v, _ := kv.Value.(string); v != fileVersion {
				return trailer, errors.E(errors.Invalid, path, "evidence file version mismatch, got", v, "expect", fileVersion)
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		return trailer, errors.E(errors.Invalid, path, fileVersionHeader, "not found")
	}
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&trailer); err != nil {
		return trailer, errors.E(err, path, "decode trailer")
	}
	n := 0
	for r.Scan() {
		ev := &fusion.FragmentEvidence{}
		if err := gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(ev); err != nil {
			return trailer, errors.E(err, path, "decode evidence")
		}
		if err := fn(ev); err != nil {
			return trailer, err
		}
		n++
	}
	if err := r.Err(); err != nil {
		return trailer, errors.E(err, path)
	}
	if n != trailer.Evidence {
		return trailer, errors.E(errors.Integrity, path, "truncated evidence file")
	}
	return trailer, nil
}
