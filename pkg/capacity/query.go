package capacity

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	// EnvelopeAllowance approximates the bytes added around a payload by
	// encryption (salt, nonce, tag or an age header) and the metadata
	// record. It is only used for advisory estimates.
	EnvelopeAllowance = 512

	tarBlockSize = 512
)

// ParseSize parses a human-readable byte count such as "1MB", "500 KiB" or
// "1234".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

// PathSize returns the number of bytes the packaging step would start from:
// the file size for a regular file, or the size of a tar archive of a
// directory (file contents padded to tar blocks plus one header block per
// entry and the end-of-archive marker).
func PathSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	total := int64(2 * tarBlockSize)
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		total += tarBlockSize
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += (fi.Size() + tarBlockSize - 1) / tarBlockSize * tarBlockSize
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Query resolves an argument that is either an existing path or a size
// string into an estimated payload size in bytes, including
// EnvelopeAllowance.
func Query(arg string) (int64, error) {
	if _, err := os.Stat(arg); err == nil {
		size, err := PathSize(arg)
		if err != nil {
			return 0, err
		}
		return size + EnvelopeAllowance, nil
	}
	size, err := ParseSize(arg)
	if err != nil {
		return 0, err
	}
	return size + EnvelopeAllowance, nil
}

// FormatBytes renders n for people.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
