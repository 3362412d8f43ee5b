// Package packaging turns a file or directory into the byte stream that is
// encrypted and embedded, and reverses that transformation on the way out.
//
// Directories are always archived. Files, and directory archives, are
// compressed only when that saves enough space to be worth it; the outcome
// is recorded in the container header so extraction never has to guess.
package packaging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/container"
)

// ErrUnknownMetadata is returned when the recorded packaging cannot be
// reversed, for example an unknown compression identifier.
var ErrUnknownMetadata = errors.New("unknown packaging metadata")

// DefaultThreshold is the largest compressed/original ratio that is still
// stored compressed.
const DefaultThreshold = 0.8

// DefaultName is used for revealed files when the container records no name.
const DefaultName = "revealed.bin"

// incompressible lists extensions whose content is already compressed.
var incompressible = map[string]struct{}{
	// archives
	".zip": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".zst": {}, ".lz4": {}, ".7z": {}, ".rar": {},
	// images
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".heic": {},
	// audio and video
	".mp3": {}, ".mp4": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".flac": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".webm": {},
	// documents
	".pdf": {}, ".docx": {}, ".xlsx": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".epub": {},
}

// Incompressible reports whether name has an extension whose content is
// known to be compressed already.
func Incompressible(name string) bool {
	_, ok := incompressible[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Decide is the compression rule: keep the compressed form only if it is
// strictly smaller than threshold times the original.
func Decide(original, compressed int, threshold float64) bool {
	if original <= 0 {
		return false
	}
	return float64(compressed) < threshold*float64(original)
}

// Options controls Pack.
type Options struct {
	// Compress enables the compression attempt.
	Compress bool
	// Compression selects the algorithm when Compressor is nil.
	Compression Compression
	// Threshold is passed to Decide. Zero means DefaultThreshold.
	Threshold float64
	// Compressor overrides Compression.
	Compressor Compressor
}

// DefaultOptions compresses with gzip at the default threshold.
func DefaultOptions() Options {
	return Options{
		Compress:    true,
		Compression: CompressionGzip,
		Threshold:   DefaultThreshold,
	}
}

// Package is a packaged payload and the facts needed to reverse it.
type Package struct {
	Body        []byte
	Compressed  bool
	Directory   bool
	Compression Compression
	Metadata    container.Metadata
}

// Flags returns the container flags describing p.
func (p *Package) Flags() container.Flags {
	var f container.Flags
	if p.Compressed {
		f |= container.FlagCompressed
	}
	if p.Directory {
		f |= container.FlagDirectory
	}
	return f
}

// Pack packages the file or directory at path.
func Pack(path string, opts Options) (*Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	name, err := baseName(path)
	if err != nil {
		return nil, err
	}

	p := &Package{
		Metadata: container.Metadata{
			Name: name,
			Mode: uint32(info.Mode().Perm()),
		},
	}

	var raw []byte
	switch {
	case info.IsDir():
		var files int
		raw, files, err = Archive(path)
		if err != nil {
			return nil, err
		}
		p.Directory = true
		p.Metadata.Files = files
		p.Metadata.Type, p.Metadata.MIME = TypeDirectory, directoryMIME
	case info.Mode().IsRegular():
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		p.Metadata.Type, p.Metadata.MIME = Identify(name)
	default:
		return nil, fmt.Errorf("%s is not a regular file or directory", path)
	}
	p.Metadata.Size = uint64(len(raw))
	p.Body = raw

	if !opts.Compress || (!p.Directory && Incompressible(path)) {
		log.Debug().Str("name", p.Metadata.Name).Msg("Skipping compression")
		return p, nil
	}

	compressor := opts.Compressor
	if compressor == nil {
		if opts.Compression == CompressionNone {
			return p, nil
		}
		compressor, err = NewCompressor(opts.Compression)
		if err != nil {
			return nil, err
		}
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	compressed, err := compressor.Compress(raw)
	if err != nil {
		return nil, err
	}
	accepted := Decide(len(raw), len(compressed), threshold)
	log.Debug().
		Str("compression", compressor.Compression().String()).
		Int("original", len(raw)).
		Int("compressed", len(compressed)).
		Bool("accepted", accepted).
		Msg("Compression decision")

	if accepted {
		p.Body = compressed
		p.Compressed = true
		p.Compression = compressor.Compression()
	}
	return p, nil
}

// rootDirName names the archive root when the payload is the filesystem root.
const rootDirName = "root"

// baseName returns the last element of the absolute form of path, so that
// relative paths such as "." and ".." still yield a real name.
func baseName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	name := filepath.Base(abs)
	if name == string(filepath.Separator) || name == "." {
		name = rootDirName
	}
	return name, nil
}

// Unpack reverses p and writes the result under dest. A file is written to
// dest itself, or inside dest when dest is an existing directory; a
// directory archive is extracted inside dest. The path written is
// returned. Existing files are never overwritten.
func Unpack(p *Package, dest string) (string, error) {
	body, err := p.Decoded()
	if err != nil {
		return "", err
	}

	if p.Directory {
		return Extract(body, dest)
	}

	target := dest
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		name := filepath.Base(p.Metadata.Name)
		if name == "." || name == "/" || name == "" || name == ".." {
			name = DefaultName
		}
		target = filepath.Join(dest, name)
	}
	mode := os.FileMode(p.Metadata.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}
	if err := WriteFileAtomic(target, body, mode); err != nil {
		return "", err
	}
	return target, nil
}

// Decoded returns the packaged bytes with compression reversed. Output is
// capped at the recorded size, or MaxDecodedSize when none is recorded.
func (p *Package) Decoded() ([]byte, error) {
	if !p.Compressed {
		return p.Body, nil
	}
	compressor, err := NewCompressor(p.Compression)
	if err != nil {
		return nil, err
	}
	limit := int64(MaxDecodedSize)
	if p.Metadata.Size != 0 && p.Metadata.Size < MaxDecodedSize {
		limit = int64(p.Metadata.Size)
	}
	body, err := compressor.Decompress(p.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}
	if p.Metadata.Size != 0 && uint64(len(body)) != p.Metadata.Size {
		return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", container.ErrCorrupt, len(body), p.Metadata.Size)
	}
	return body, nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place. It fails if path already exists.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) (err error) {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s", fs.ErrExist, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pngstash-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
