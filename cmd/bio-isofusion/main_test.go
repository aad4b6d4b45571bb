package main

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/isofusion/fusion"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const testGTF = `chr1	TEST	gene	1000	5000	.	+	.	gene_id "ENSG1"; gene_name "GENE1";
chr1	TEST	transcript	1000	5000	.	+	.	gene_id "ENSG1"; transcript_id "ENST1"; transcript_name "T1";
chr1	TEST	exon	1000	1100	.	+	.	gene_id "ENSG1"; transcript_id "ENST1"; exon_number 1;
chr1	TEST	exon	2000	2100	.	+	.	gene_id "ENSG1"; transcript_id "ENST1"; exon_number 2;
chr1	TEST	exon	3000	3100	.	+	.	gene_id "ENSG1"; transcript_id "ENST1"; exon_number 3;
chr1	TEST	exon	4900	5000	.	+	.	gene_id "ENSG1"; transcript_id "ENST1"; exon_number 4;
chr2	TEST	gene	10000	20000	.	+	.	gene_id "ENSG2"; gene_name "GENE2";
chr2	TEST	transcript	10000	20000	.	+	.	gene_id "ENSG2"; transcript_id "ENST2"; transcript_name "T2";
chr2	TEST	exon	10000	10100	.	+	.	gene_id "ENSG2"; transcript_id "ENST2"; exon_number 1;
chr2	TEST	exon	12000	12100	.	+	.	gene_id "ENSG2"; transcript_id "ENST2"; exon_number 2;
chr2	TEST	exon	15000	15100	.	+	.	gene_id "ENSG2"; transcript_id "ENST2"; exon_number 3;
chr2	TEST	exon	19900	20000	.	+	.	gene_id "ENSG2"; transcript_id "ENST2"; exon_number 4;
`

// writeBAM writes a BAM file holding one pair split between GENE1 and GENE2
// and one pair inside GENE1, plus its index.
func writeBAM(t *testing.T, dir string) string {
	chr1, err := sam.NewReference("chr1", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 100000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	assert.NoError(t, err)
	newRecord := func(name string, pos int, flags sam.Flags, matePos int, cigar string, aux ...string) *sam.Record {
		c, err := sam.ParseCigar([]byte(cigar))
		assert.NoError(t, err)
		_, n := c.Lengths()
		r := &sam.Record{
			Name: name, Ref: chr1, Pos: pos, MapQ: 60, Cigar: c, Flags: flags | sam.Paired,
			MateRef: chr1, MatePos: matePos,
			Seq:  sam.NewSeq([]byte(strings.Repeat("ACGT", n/4+1)[:n])),
			Qual: []byte(strings.Repeat("I", n)),
		}
		for _, a := range aux {
			kv := strings.SplitN(a, ":", 2)
			field, err := sam.NewAux(sam.NewTag(kv[0]), kv[1])
			assert.NoError(t, err)
			r.AuxFields = append(r.AuxFields, field)
		}
		return r
	}
	records := []*sam.Record{
		newRecord("split", 1999, sam.Read2|sam.Reverse, 2050, "50M"),
		newRecord("pair", 2009, sam.Read1, 2039, "50M"),
		newRecord("pair", 2039, sam.Read2|sam.Reverse, 2009, "50M"),
		newRecord("split", 2050, sam.Read1, 1999, "50M50S", "SA:chr2,12000,+,50S50M,60,0;"),
	}

	path := filepath.Join(dir, "test.bam")
	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	assert.NoError(t, err)
	for _, r := range records {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())

	in, err := os.Open(path)
	assert.NoError(t, err)
	defer in.Close() // nolint: errcheck
	br, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	var idx bam.Index
	for {
		r, err := br.Read()
		if err != nil {
			break
		}
		assert.NoError(t, idx.Add(r, br.LastChunk()))
	}
	assert.NoError(t, br.Close())
	idxOut, err := os.Create(path + ".bai")
	assert.NoError(t, err)
	assert.NoError(t, bam.WriteIndex(idxOut, &idx))
	assert.NoError(t, idxOut.Close())
	return path
}

func readLines(t *testing.T, path string) []string {
	in, err := os.Open(path)
	assert.NoError(t, err)
	defer in.Close() // nolint: errcheck
	var data []byte
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(in)
		assert.NoError(t, err)
		data, err = ioutil.ReadAll(gz)
		assert.NoError(t, err)
	} else {
		data, err = ioutil.ReadAll(in)
		assert.NoError(t, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	gtfPath := filepath.Join(tempDir, "genes.gtf")
	assert.NoError(t, ioutil.WriteFile(gtfPath, []byte(testGTF), 0644))
	opts := fusion.DefaultOpts
	opts.Parallelism = 2

	flags := isofusionFlags{
		gtfPath:            gtfPath,
		bamPath:            writeBAM(t, tempDir),
		outputPath:         filepath.Join(tempDir, "fusions.tsv.gz"),
		fragmentOutputPath: filepath.Join(tempDir, "fragments.tsv"),
		rioOutputPath:      filepath.Join(tempDir, "evidence.rio"),
	}
	assert.NoError(t, run(ctx, flags, opts))
	want := []string{
		"Id_0", "true",
		"ENSG1", "GENE1", "chr1", "2100", "1", "1", "KNOWN",
		"ENSG2", "GENE2", "chr2", "12000", "-1", "1", "KNOWN",
		"BND", "1", "1", "0", "0",
		"1", "0", "T1-2", "T2-2",
		"NONE", "NONE", "NONE",
	}
	lines := readLines(t, flags.outputPath)
	assert.EQ(t, len(lines), 2)
	expect.EQ(t, strings.Split(lines[1], "\t"), want)

	lines = readLines(t, flags.fragmentOutputPath)
	assert.EQ(t, len(lines), 2)
	expect.True(t, strings.HasPrefix(lines[1], "split\tMATCHED_JUNCTION\tchr1\t2100\t"), lines[1])

	// Replay the evidence without the BAM file: no junction depth.
	replay := isofusionFlags{
		gtfPath:      gtfPath,
		rioInputPath: flags.rioOutputPath,
		outputPath:   filepath.Join(tempDir, "replay.tsv"),
	}
	assert.NoError(t, run(ctx, replay, opts))
	want[21] = "0"
	lines = readLines(t, replay.outputPath)
	assert.EQ(t, len(lines), 2)
	expect.EQ(t, strings.Split(lines[1], "\t"), want)
}

func TestRunRnaMatch(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	gtfPath := filepath.Join(tempDir, "genes.gtf")
	assert.NoError(t, ioutil.WriteFile(gtfPath, []byte(testGTF), 0644))
	flags := isofusionFlags{
		gtfPath:       gtfPath,
		rnaCallsPath:  "../../fusion/testdata/rna_calls.tsv",
		breakendsPath: "../../fusion/testdata/breakends.tsv",
		rnaOutputPath: filepath.Join(tempDir, "matches.tsv"),
	}
	assert.NoError(t, run(ctx, flags, fusion.DefaultOpts))
	lines := readLines(t, flags.rnaOutputPath)
	expect.EQ(t, len(lines), 4)
	expect.True(t, strings.HasPrefix(lines[0], "Name\tGeneUp\t"))
	for _, line := range lines[1:] {
		expect.True(t, strings.HasSuffix(line, "\tNONE"), line)
	}
}

func TestRunRnaMatchWithCandidates(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	gtfPath := filepath.Join(tempDir, "genes.gtf")
	assert.NoError(t, ioutil.WriteFile(gtfPath, []byte(testGTF), 0644))
	// One variant joins the split-read junction chr1:2100-chr2:12000 exactly.
	breakendsPath := filepath.Join(tempDir, "breakends.tsv")
	assert.NoError(t, ioutil.WriteFile(breakendsPath, []byte(
		"SvId\tClusterId\tChainId\tChromosome\tPosition\tOrientation\n"+
			"5\t5\t-1\tchr1\t2100\t1\n"+
			"5\t5\t-1\tchr2\t12000\t-1\n"), 0644))
	opts := fusion.DefaultOpts
	opts.Parallelism = 2
	flags := isofusionFlags{
		gtfPath:       gtfPath,
		bamPath:       writeBAM(t, tempDir),
		outputPath:    filepath.Join(tempDir, "fusions.tsv"),
		rnaCallsPath:  "../../fusion/testdata/rna_calls.tsv",
		breakendsPath: breakendsPath,
		rnaOutputPath: filepath.Join(tempDir, "matches.tsv"),
	}
	assert.NoError(t, run(ctx, flags, opts))
	lines := readLines(t, flags.outputPath)
	assert.EQ(t, len(lines), 2)
	expect.True(t, strings.HasPrefix(lines[1], "Id_0\t"), lines[1])

	lines = readLines(t, flags.rnaOutputPath)
	assert.EQ(t, len(lines), 4)
	row := strings.Split(lines[1], "\t")
	expect.EQ(t, row[0], "FUS1")
	expect.EQ(t, row[len(row)-4:], []string{"true", "true", "false", "Id_0"})
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	expect.True(t, run(ctx, isofusionFlags{}, fusion.DefaultOpts) != nil)
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	gtfPath := filepath.Join(tempDir, "genes.gtf")
	assert.NoError(t, ioutil.WriteFile(gtfPath, []byte(testGTF), 0644))
	expect.True(t, run(ctx, isofusionFlags{gtfPath: gtfPath}, fusion.DefaultOpts) != nil)
	expect.True(t, run(ctx, isofusionFlags{gtfPath: gtfPath, rnaCallsPath: "x.tsv"}, fusion.DefaultOpts) != nil)
}
