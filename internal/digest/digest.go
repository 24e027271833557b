// Package digest computes and verifies the SHA-1 content hashes clay uses to
// address tarballs in the content store and to check them against a
// registry's published dist.shasum.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// SHA1Hex streams r through SHA-1 and returns the lowercase hex digest. It
// also returns the number of bytes read, since callers often need both the
// digest and the size for a ContentStoreEntry.
func SHA1Hex(r io.Reader) (sum string, size int64, err error) {
	h := sha1.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, errors.Wrap(err, "hashing content")
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Verify streams r through SHA-1 and compares the result against want
// (case-insensitively, as registries are inconsistent about casing). It
// returns the computed digest alongside a Mismatch error so callers can
// report both the expected and actual values.
func Verify(r io.Reader, want string) (got string, err error) {
	got, _, err = SHA1Hex(r)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(got, want) {
		return got, &Mismatch{Want: want, Got: got}
	}
	return got, nil
}

// Mismatch reports that a downloaded tarball's computed digest did not match
// the digest a registry advertised for it.
type Mismatch struct {
	Want string
	Got  string
}

func (m *Mismatch) Error() string {
	return "digest mismatch: want " + m.Want + ", got " + m.Got
}
