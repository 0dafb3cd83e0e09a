package ingest

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	gzip "github.com/klauspost/pgzip"
)

// Member is one RDF file pulled out of the catalog archive.
type Member struct {
	ID   int
	Name string
	Body []byte
}

// ArchiveReader streams members of the catalog tarball one at a time, so
// the archive is never decompressed into memory wholesale. It is a finite,
// forward-only sequence: once consumed it cannot be restarted.
type ArchiveReader struct {
	file *os.File
	gz   *gzip.Reader
	tr   *tar.Reader
}

// OpenArchive opens a tar archive, transparently decompressing .bz2 and .gz
// variants by file extension.
func OpenArchive(path string) (*ArchiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	ar := &ArchiveReader{file: f}
	switch {
	case strings.HasSuffix(path, ".bz2"):
		ar.tr = tar.NewReader(bzip2.NewReader(f))
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &ParseError{Member: path, Err: err}
		}
		ar.gz = gz
		ar.tr = tar.NewReader(gz)
	default:
		ar.tr = tar.NewReader(f)
	}
	return ar, nil
}

// Next returns the next RDF member, skipping directories, non-RDF files and
// members whose path carries no numeric book id. Returns io.EOF when the
// archive is exhausted.
func (a *ArchiveReader) Next() (*Member, error) {
	for {
		hdr, err := a.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, &ParseError{Member: "tar stream", Err: err}
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".rdf") {
			continue
		}

		id, ok := memberID(hdr.Name)
		if !ok {
			continue
		}

		body, err := io.ReadAll(a.tr)
		if err != nil {
			return nil, &ParseError{Member: hdr.Name, Err: err}
		}
		return &Member{ID: id, Name: hdr.Name, Body: body}, nil
	}
}

func (a *ArchiveReader) Close() error {
	if a.gz != nil {
		a.gz.Close()
	}
	return a.file.Close()
}

// memberID extracts the book id from a member path such as
// "cache/epub/123/pg123.rdf": the last all-digit directory segment. Signed
// segments do not count; identifiers are never negative. Paths with no such
// segment are skipped by the caller.
func memberID(name string) (int, bool) {
	segs := strings.Split(name, "/")
	for i := len(segs) - 2; i >= 0; i-- {
		if !allDigits(segs[i]) {
			continue
		}
		if id, err := strconv.Atoi(segs[i]); err == nil {
			return id, true
		}
	}
	return 0, false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
