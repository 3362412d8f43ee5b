package packaging

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrUnsafePath = errors.New("unsafe archive path")

// Archive tars the directory at dir. Entries are rooted at the base name of
// the directory's absolute path. Only directories and regular files are stored; symlinks and
// special files are skipped. The number of regular files is returned with
// the archive.
func Archive(dir string) ([]byte, int, error) {
	root, err := baseName(dir)
	if err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	files := 0

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			log.Debug().Str("path", p).Str("mode", info.Mode().String()).Msg("Skipping non-regular file")
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Uname, hdr.Gname = "", ""
		if info.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("archiving %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), files, nil
}

// Extract unpacks a tar archive into dest and returns the path of the
// extracted top-level entry (dest itself when the archive has several).
// Everything is first written to a staging directory inside dest and only
// renamed into place once the whole archive has been read. Existing paths
// are never overwritten.
func Extract(archive []byte, dest string) (string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(dest, ".pngstash-extract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	tops := map[string]struct{}{}
	var order []string

	tr := tar.NewReader(bytes.NewReader(archive))
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, h.Name)
		}
		if err != nil {
			return "", fmt.Errorf("reading archive: %w", err)
		}

		name, err := cleanTarPath(h.Name)
		if err != nil {
			return "", err
		}
		top := strings.SplitN(name, "/", 2)[0]
		if _, ok := tops[top]; !ok {
			tops[top] = struct{}{}
			order = append(order, top)
		}
		target := filepath.Join(staging, filepath.FromSlash(name))

		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(h.Mode)); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			if err := writeEntry(target, tr, fileMode(h.Mode)); err != nil {
				return "", err
			}
		default:
			log.Debug().Str("name", name).Int("type", int(h.Typeflag)).Msg("Skipping unsupported archive entry")
		}
	}
	if len(order) == 0 {
		return "", fmt.Errorf("archive is empty")
	}

	for _, top := range order {
		if _, err := os.Lstat(filepath.Join(dest, top)); err == nil {
			return "", fmt.Errorf("%w: %s", fs.ErrExist, filepath.Join(dest, top))
		}
	}
	for _, top := range order {
		if err := os.Rename(filepath.Join(staging, top), filepath.Join(dest, top)); err != nil {
			return "", err
		}
	}

	if len(order) == 1 {
		return filepath.Join(dest, order[0]), nil
	}
	return dest, nil
}

// cleanTarPath normalizes an entry name and rejects anything that would
// land outside the extraction directory.
func cleanTarPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the destination", ErrUnsafePath, name)
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: empty entry name", ErrUnsafePath)
	}
	return cleaned, nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fileMode(m int64) os.FileMode {
	perm := os.FileMode(m).Perm()
	if perm == 0 {
		return 0o644
	}
	return perm | 0o600
}

func dirMode(m int64) os.FileMode {
	perm := os.FileMode(m).Perm()
	if perm == 0 {
		return 0o755
	}
	return perm | 0o700
}
