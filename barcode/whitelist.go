package barcode

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// ReadWhitelist reads a newline-delimited list of sequences. Blank lines and
// lines starting with '#' are skipped. Only the first whitespace-delimited
// token of each line is used.
func ReadWhitelist(r io.Reader) ([]string, error) {
	var list []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			line = line[:i]
		}
		list = append(list, strings.ToUpper(line))
	}
	return list, sc.Err()
}

// LoadWhitelist reads a whitelist file. The path may name any file supported
// by grailbio/base/file, optionally compressed.
func LoadWhitelist(ctx context.Context, path string) (list []string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open whitelist", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = errors.E(e, "close whitelist", path)
		}
	}()
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	if list, err = ReadWhitelist(r); err != nil {
		return nil, errors.E(err, "read whitelist", path)
	}
	if len(list) == 0 {
		return nil, errors.E(errors.Invalid, ErrBadWhitelist, "no entries in", path)
	}
	return list, nil
}

// IndexOpts configures LoadIndexes.
type IndexOpts struct {
	// BarcodePath is the cell barcode whitelist. Empty disables barcode
	// correction.
	BarcodePath string
	// LinkerPath is the linker whitelist. Empty disables the linker filter.
	LinkerPath string
	// Policy resolves equal-distance collisions in both indexes.
	Policy ConflictPolicy
}

// LoadIndexes reads the barcode and linker whitelists and builds their
// mismatch indexes in parallel, with budgets BarcodeMismatches and
// LinkerMismatches. An index is nil when its path is empty.
func LoadIndexes(ctx context.Context, opts IndexOpts) (bc, linker *MismatchIndex, err error) {
	type job struct {
		path   string
		budget int
		dst    **MismatchIndex
	}
	jobs := []job{
		{opts.BarcodePath, BarcodeMismatches, &bc},
		{opts.LinkerPath, LinkerMismatches, &linker},
	}
	err = traverse.Each(len(jobs), func(i int) error {
		j := jobs[i]
		if j.path == "" {
			return nil
		}
		list, err := LoadWhitelist(ctx, j.path)
		if err != nil {
			return err
		}
		x, err := NewMismatchIndex(list, j.budget, opts.Policy)
		if err != nil {
			return errors.E(err, "build index", j.path)
		}
		log.Printf("%s: %d entries of length %d, %d sequences within %d mismatches",
			j.path, x.Entries(), x.SeqLen(), x.Len(), j.budget)
		*j.dst = x
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return bc, linker, nil
}
