package packaging

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/pngstash/pkg/container"
)

// fixedCompressor pretends to compress any input to size bytes.
type fixedCompressor struct {
	size int
}

func (fixedCompressor) Compression() Compression { return CompressionGzip }

func (f fixedCompressor) Compress(data []byte) ([]byte, error) {
	return bytes.Repeat([]byte{0xC0}, f.size), nil
}

func (fixedCompressor) Decompress(data []byte, limit int64) ([]byte, error) {
	return nil, nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		original, compressed int
		want                 bool
	}{
		{1000, 750, true},
		{1000, 900, false},
		{1000, 800, false},
		{1000, 799, true},
		{1000, 1200, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Decide(tt.original, tt.compressed, DefaultThreshold),
			"Decide(%d, %d)", tt.original, tt.compressed)
	}
}

func TestPackCompressionThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	raw := bytes.Repeat([]byte("a"), 1000)
	writeFile(t, path, raw)

	for _, tt := range []struct {
		compressedSize int
		wantCompressed bool
	}{
		{750, true},
		{900, false},
	} {
		opts := DefaultOptions()
		opts.Compressor = fixedCompressor{size: tt.compressedSize}

		p, err := Pack(path, opts)
		require.NoError(t, err)
		require.Equal(t, tt.wantCompressed, p.Compressed, "compressed size %d", tt.compressedSize)
		require.Equal(t, uint64(1000), p.Metadata.Size)
		if tt.wantCompressed {
			require.Len(t, p.Body, tt.compressedSize)
			require.Equal(t, container.FlagCompressed, p.Flags())
		} else {
			require.Equal(t, raw, p.Body)
			require.Equal(t, CompressionNone, p.Compression)
			require.Equal(t, container.Flags(0), p.Flags())
		}

		// Same input, same outcome.
		again, err := Pack(path, opts)
		require.NoError(t, err)
		require.Equal(t, p.Compressed, again.Compressed)
	}
}

func TestPackSkipsIncompressibleAndDisabled(t *testing.T) {
	dir := t.TempDir()
	raw := bytes.Repeat([]byte("compressible "), 500)

	archive := filepath.Join(dir, "bundle.ZIP")
	writeFile(t, archive, raw)
	p, err := Pack(archive, DefaultOptions())
	require.NoError(t, err)
	require.False(t, p.Compressed)

	text := filepath.Join(dir, "plain.txt")
	writeFile(t, text, raw)
	opts := DefaultOptions()
	opts.Compress = false
	p, err = Pack(text, opts)
	require.NoError(t, err)
	require.False(t, p.Compressed)
	require.Equal(t, raw, p.Body)
}

func TestPackUnpackFile(t *testing.T) {
	for _, c := range []Compression{CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "log.txt")
			raw := []byte(strings.Repeat("2024-01-01 INFO request served in 3ms\n", 200))
			writeFile(t, path, raw)
			require.NoError(t, os.Chmod(path, 0o640))

			opts := DefaultOptions()
			opts.Compression = c
			p, err := Pack(path, opts)
			require.NoError(t, err)
			require.True(t, p.Compressed)
			require.Equal(t, c, p.Compression)
			require.Equal(t, "log.txt", p.Metadata.Name)

			out := filepath.Join(dir, "out")
			require.NoError(t, os.Mkdir(out, 0o755))
			written, err := Unpack(p, out)
			require.NoError(t, err)
			require.Equal(t, filepath.Join(out, "log.txt"), written)

			got, err := os.ReadFile(written)
			require.NoError(t, err)
			require.Equal(t, raw, got)

			info, err := os.Stat(written)
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0o640), info.Mode().Perm())

			_, err = Unpack(p, out)
			require.ErrorIs(t, err, fs.ErrExist)
		})
	}
}

func TestUnpackToExplicitPath(t *testing.T) {
	dir := t.TempDir()
	p := &Package{Body: []byte("hello"), Metadata: container.Metadata{Name: "ignored.txt"}}

	target := filepath.Join(dir, "nested", "chosen.txt")
	written, err := Unpack(p, target)
	require.NoError(t, err)
	require.Equal(t, target, written)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestPackUnpackDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "docs")
	content := bytes.Repeat([]byte("x"), 50)
	writeFile(t, filepath.Join(src, "notes.txt"), content)

	p, err := Pack(src, DefaultOptions())
	require.NoError(t, err)
	require.True(t, p.Directory)
	require.Equal(t, 1, p.Metadata.Files)
	require.Equal(t, "docs", p.Metadata.Name)
	require.Equal(t, TypeDirectory, p.Metadata.Type)
	require.Equal(t, "application/x-tar", p.Metadata.MIME)
	require.True(t, p.Flags().Has(container.FlagDirectory))

	dest := filepath.Join(t.TempDir(), "restored")
	written, err := Unpack(p, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "docs"), written)

	got, err := os.ReadFile(filepath.Join(dest, "docs", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)

	// No staging directories left behind.
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = Unpack(p, dest)
	require.ErrorIs(t, err, fs.ErrExist)
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name     string
		category string
		mime     string
	}{
		{"notes.TXT", TypeText, "text/plain"},
		{"scan.pdf", TypeDocument, "application/pdf"},
		{"photo.png", TypeImage, "image/png"},
		{"backup.zip", TypeArchive, "application/zip"},
		{"blob", TypeBinary, "application/octet-stream"},
		{"data.unknownext", TypeBinary, "application/octet-stream"},
	}
	for _, tt := range tests {
		category, mimeType := Identify(tt.name)
		require.Equal(t, tt.category, category, tt.name)
		require.True(t, strings.HasPrefix(mimeType, tt.mime), "%s: got %s", tt.name, mimeType)
	}

	path := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, path, []byte("%PDF-1.7"))
	p, err := Pack(path, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, TypeDocument, p.Metadata.Type)
	require.Equal(t, "application/pdf", p.Metadata.MIME)
}

func TestArchiveNested(t *testing.T) {
	src := filepath.Join(t.TempDir(), "project")
	writeFile(t, filepath.Join(src, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(src, "sub", "b.txt"), []byte("bb"))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))
	if err := os.Symlink(filepath.Join(src, "a.txt"), filepath.Join(src, "link")); err != nil {
		t.Logf("symlinks unavailable: %v", err)
	}

	data, files, err := Archive(src)
	require.NoError(t, err)
	require.Equal(t, 2, files)
	require.True(t, IsTar(data))

	dest := t.TempDir()
	top, err := Extract(data, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "project"), top)

	b, err := os.ReadFile(filepath.Join(top, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "bb", string(b))

	info, err := os.Stat(filepath.Join(top, "empty"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = os.Lstat(filepath.Join(top, "link"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func buildTar(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.txt", "ok/../../evil.txt", "/etc/evil"} {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			_, err := Extract(buildTar(t, "ok/fine.txt", name), dest)
			require.ErrorIs(t, err, ErrUnsafePath)

			// Nothing from the rejected archive is left in place.
			entries, err := os.ReadDir(dest)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestExtractMultipleTopLevelEntries(t *testing.T) {
	dest := t.TempDir()
	top, err := Extract(buildTar(t, "one.txt", "two/three.txt"), dest)
	require.NoError(t, err)
	require.Equal(t, dest, top)
	require.FileExists(t, filepath.Join(dest, "one.txt"))
	require.FileExists(t, filepath.Join(dest, "two", "three.txt"))
}

func TestCompressorsRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox ", 100))
	for _, c := range []Compression{CompressionGzip, CompressionZstd, CompressionLZ4} {
		compressor, err := NewCompressor(c)
		require.NoError(t, err)
		require.Equal(t, c, compressor.Compression())

		packed, err := compressor.Compress(data)
		require.NoError(t, err)
		require.Less(t, len(packed), len(data))

		unpacked, err := compressor.Decompress(packed, int64(len(data)))
		require.NoError(t, err)
		require.Equal(t, data, unpacked)

		_, err = compressor.Decompress(packed, int64(len(data)-1))
		require.ErrorIs(t, err, ErrDecodedTooLarge)

		parsed, err := ParseCompression(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}

	_, err := NewCompressor(Compression(42))
	require.ErrorIs(t, err, ErrUnknownMetadata)
	_, err = ParseCompression("brotli")
	require.Error(t, err)
}

func TestSniffStrategy(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dir")
	writeFile(t, filepath.Join(src, "f.txt"), []byte(strings.Repeat("sniff me ", 100)))
	archive, _, err := Archive(src)
	require.NoError(t, err)

	text := []byte(strings.Repeat("plain text body ", 50))

	for _, c := range []Compression{CompressionGzip, CompressionZstd, CompressionLZ4} {
		compressor, _ := NewCompressor(c)

		compressedArchive, err := compressor.Compress(archive)
		require.NoError(t, err)
		p, err := SniffStrategy{}.Detect(compressedArchive)
		require.NoError(t, err)
		require.True(t, p.Compressed, c.String())
		require.True(t, p.Directory, c.String())
		require.Equal(t, c, p.Compression)

		compressedText, err := compressor.Compress(text)
		require.NoError(t, err)
		p, err = SniffStrategy{}.Detect(compressedText)
		require.NoError(t, err)
		require.True(t, p.Compressed)
		require.False(t, p.Directory)

		body, err := p.Decoded()
		require.NoError(t, err)
		require.Equal(t, text, body)
	}

	p, err := SniffStrategy{}.Detect(archive)
	require.NoError(t, err)
	require.False(t, p.Compressed)
	require.True(t, p.Directory)

	p, err = SniffStrategy{}.Detect(text)
	require.NoError(t, err)
	require.False(t, p.Compressed)
	require.False(t, p.Directory)

	// A gzip magic followed by garbage is just a file.
	p, err = SniffStrategy{}.Detect([]byte{0x1f, 0x8b, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	require.False(t, p.Compressed)
}

func TestSelectStrategy(t *testing.T) {
	require.Equal(t, "sniff", SelectStrategy(nil, nil).Name())

	h := &container.Header{Flags: container.FlagCompressed}
	require.Equal(t, "sniff", SelectStrategy(h, nil).Name())

	h.Flags |= container.FlagMetadata
	h.Compression = uint8(CompressionZstd)
	strategy := SelectStrategy(h, &container.Metadata{Name: "x"})
	require.Equal(t, "metadata", strategy.Name())

	p, err := strategy.Detect([]byte("body"))
	require.NoError(t, err)
	require.True(t, p.Compressed)
	require.Equal(t, CompressionZstd, p.Compression)
	require.Equal(t, "x", p.Metadata.Name)
}

func TestMetadataStrategyUnknownCompression(t *testing.T) {
	strategy := MetadataStrategy{Header: container.Header{Flags: container.FlagMetadata | container.FlagCompressed, Compression: 9}}
	_, err := strategy.Detect([]byte("body"))
	require.ErrorIs(t, err, ErrUnknownMetadata)

	strategy = MetadataStrategy{Header: container.Header{Flags: container.FlagMetadata, Compression: uint8(CompressionGzip)}}
	_, err = strategy.Detect([]byte("body"))
	require.ErrorIs(t, err, ErrUnknownMetadata)
}

func TestDecodedDetectsSizeMismatch(t *testing.T) {
	compressor, _ := NewCompressor(CompressionGzip)
	packed, err := compressor.Compress([]byte("twelve bytes"))
	require.NoError(t, err)

	p := &Package{Body: packed, Compressed: true, Compression: CompressionGzip, Metadata: container.Metadata{Size: 99}}
	_, err = p.Decoded()
	require.ErrorIs(t, err, container.ErrCorrupt)
}

func TestDecodedStopsAtRecordedSize(t *testing.T) {
	for _, c := range []Compression{CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			compressor, err := NewCompressor(c)
			require.NoError(t, err)
			bomb, err := compressor.Compress(make([]byte, 4<<20))
			require.NoError(t, err)

			p := &Package{Body: bomb, Compressed: true, Compression: c, Metadata: container.Metadata{Size: 1024}}
			_, err = p.Decoded()
			require.ErrorIs(t, err, container.ErrCorrupt)
			require.ErrorIs(t, err, ErrDecodedTooLarge)
		})
	}
}

func TestArchiveRelativeRoot(t *testing.T) {
	src := filepath.Join(t.TempDir(), "project")
	writeFile(t, filepath.Join(src, "a.txt"), []byte("a"))
	t.Chdir(src)

	p, err := Pack(".", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "project", p.Metadata.Name)

	dest := t.TempDir()
	top, err := Unpack(p, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "project"), top)
	require.FileExists(t, filepath.Join(top, "a.txt"))

	t.Chdir(filepath.Join(src, ".."))
	data, _, err := Archive(filepath.Join("project", ".."))
	require.NoError(t, err)
	top, err = Extract(data, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, filepath.Base(filepath.Dir(src)), filepath.Base(top))
}

func TestBaseName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	t.Chdir(dir)

	for path, want := range map[string]string{
		".":                        "work",
		"./":                       "work",
		"sub/..":                   "work",
		string(filepath.Separator): rootDirName,
	} {
		got, err := baseName(path)
		require.NoError(t, err)
		require.Equal(t, want, got, path)
	}
}
