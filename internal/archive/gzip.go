package archive

import (
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
)

// CompressGzip writes the gzip-compressed form of r to w. The content store
// persists every object in this form regardless of how it arrived, so
// dedup-by-hash operates on the raw (pre-compression) bytes while disk usage
// benefits from compression.
func CompressGzip(w io.Writer, r io.Reader) error {
	gw := gzip.NewWriter(w)
	if _, err := io.Copy(gw, r); err != nil {
		return errors.Wrap(err, "compressing")
	}
	return gw.Close()
}

// DecompressGzip returns a reader over the decompressed contents of r. The
// caller must close the returned reader.
func DecompressGzip(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening gzip stream")
	}
	return gr, nil
}
