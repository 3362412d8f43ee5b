package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/container"
	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
	"github.com/andresmejia3/pngstash/pkg/stego"
)

var fastCiphers = []crypt.Option{crypt.WithPBKDF2Iterations(1000), crypt.WithAgeWorkFactor(10)}

func makeCarrier(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = uint8((i * 7) % 251)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writePayload(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func concealConfig(dir string) ConcealConfig {
	return ConcealConfig{
		CarrierPath:   filepath.Join(dir, "carrier.png"),
		PayloadPath:   filepath.Join(dir, "secret.txt"),
		OutputPath:    filepath.Join(dir, "out", "stego.png"),
		Password:      "correct horse",
		Cipher:        crypt.AESGCM,
		CipherOptions: fastCiphers,
		Packaging:     packaging.DefaultOptions(),
	}
}

// flipContainerBit flips the lowest bit of the channel holding bit index
// bit of the embedded container.
func flipContainerBit(t *testing.T, path string, bit int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	img, err := png.Decode(f)
	f.Close()
	require.NoError(t, err)

	var pix []uint8
	var stride int
	switch m := img.(type) {
	case *image.NRGBA:
		pix, stride = m.Pix, m.Stride
	case *image.RGBA:
		pix, stride = m.Pix, m.Stride
	default:
		t.Fatalf("unexpected image type %T", img)
	}

	width := img.Bounds().Dx()
	pixel, ch := bit/3, bit%3
	x, y := pixel%width, pixel/width
	pix[y*stride+x*4+ch] ^= 1

	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, png.Encode(out, img))
}

func TestConcealRevealFile(t *testing.T) {
	for _, algorithm := range []crypt.Algorithm{crypt.None, crypt.AESGCM, crypt.XChaCha20, crypt.Age} {
		t.Run(algorithm.String(), func(t *testing.T) {
			dir := t.TempDir()
			cfg := concealConfig(dir)
			cfg.Cipher = algorithm
			payload := []byte(strings.Repeat("meet at the old mill at midnight\n", 60))
			makeCarrier(t, cfg.CarrierPath, 200, 200)
			writePayload(t, cfg.PayloadPath, payload)

			result, err := Conceal(cfg)
			require.NoError(t, err)
			require.Equal(t, uint8(algorithm), result.Header.Cipher)
			require.True(t, result.Header.Flags.Has(container.FlagCompressed))
			require.True(t, result.Header.Flags.Has(container.FlagMetadata))
			require.FileExists(t, cfg.OutputPath)

			restored := filepath.Join(dir, "restored")
			require.NoError(t, os.Mkdir(restored, 0o755))
			revealed, err := Reveal(RevealConfig{
				ImagePath:     cfg.OutputPath,
				OutputPath:    restored,
				Password:      cfg.Password,
				CipherOptions: fastCiphers,
			})
			require.NoError(t, err)
			require.False(t, revealed.Legacy)
			require.Equal(t, "metadata", revealed.Strategy)
			require.Equal(t, filepath.Join(restored, "secret.txt"), revealed.OutputPath)
			require.Equal(t, packaging.TypeText, revealed.Metadata.Type)

			got, err := os.ReadFile(revealed.OutputPath)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestConcealRevealDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	cfg.PayloadPath = filepath.Join(dir, "docs")
	content := bytes.Repeat([]byte{'z'}, 50)
	makeCarrier(t, cfg.CarrierPath, 120, 120)
	writePayload(t, filepath.Join(cfg.PayloadPath, "notes.txt"), content)

	result, err := Conceal(cfg)
	require.NoError(t, err)
	require.True(t, result.Header.Flags.Has(container.FlagDirectory))
	require.Equal(t, 1, result.Metadata.Files)
	require.Equal(t, packaging.TypeDirectory, result.Metadata.Type)

	restored := filepath.Join(dir, "restored")
	revealed, err := Reveal(RevealConfig{
		ImagePath:     cfg.OutputPath,
		OutputPath:    restored,
		Password:      cfg.Password,
		CipherOptions: fastCiphers,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(restored, "docs"), revealed.OutputPath)

	got, err := os.ReadFile(filepath.Join(restored, "docs", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestConcealRevealCurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	docs := filepath.Join(dir, "docs")
	content := []byte("relative paths still need a name")
	makeCarrier(t, cfg.CarrierPath, 120, 120)
	writePayload(t, filepath.Join(docs, "notes.txt"), content)

	t.Chdir(docs)
	cfg.PayloadPath = "."
	result, err := Conceal(cfg)
	require.NoError(t, err)
	require.Equal(t, "docs", result.Metadata.Name)

	restored := filepath.Join(dir, "restored")
	revealed, err := Reveal(RevealConfig{
		ImagePath:     cfg.OutputPath,
		OutputPath:    restored,
		Password:      cfg.Password,
		CipherOptions: fastCiphers,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(restored, "docs"), revealed.OutputPath)

	got, err := os.ReadFile(filepath.Join(restored, "docs", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestConcealLeavesCarrierUntouched(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	makeCarrier(t, cfg.CarrierPath, 64, 64)
	writePayload(t, cfg.PayloadPath, []byte("short secret"))

	before, err := os.ReadFile(cfg.CarrierPath)
	require.NoError(t, err)

	_, err = Conceal(cfg)
	require.NoError(t, err)

	after, err := os.ReadFile(cfg.CarrierPath)
	require.NoError(t, err)
	require.Equal(t, before, after)

	cfg.OutputPath = cfg.CarrierPath
	_, err = Conceal(cfg)
	require.ErrorIs(t, err, ErrOverwritesCarrier)
}

func TestConcealTooSmall(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	cfg.Packaging.Compress = false
	makeCarrier(t, cfg.CarrierPath, 20, 20)
	writePayload(t, cfg.PayloadPath, bytes.Repeat([]byte("x"), 500))

	_, err := Conceal(cfg)
	require.ErrorIs(t, err, capacity.ErrTooSmall)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, Embedding, stageErr.Stage)

	var capErr *capacity.Error
	require.True(t, errors.As(err, &capErr))
	require.Equal(t, int64(150), capErr.AvailableBytes)

	_, err = os.Stat(filepath.Dir(cfg.OutputPath))
	require.True(t, os.IsNotExist(err), "no output directory should be created")
}

func TestConcealDryRun(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	cfg.DryRun = true
	makeCarrier(t, cfg.CarrierPath, 64, 64)
	writePayload(t, cfg.PayloadPath, []byte("dry run"))

	result, err := Conceal(cfg)
	require.NoError(t, err)
	require.Greater(t, result.ContainerBytes, container.HeaderSize)
	require.NoFileExists(t, cfg.OutputPath)
}

func TestRevealWrongPassword(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	makeCarrier(t, cfg.CarrierPath, 64, 64)
	writePayload(t, cfg.PayloadPath, []byte("the vault code is 4471"))

	_, err := Conceal(cfg)
	require.NoError(t, err)

	restored := filepath.Join(dir, "restored")
	require.NoError(t, os.Mkdir(restored, 0o755))
	_, err = Reveal(RevealConfig{
		ImagePath:     cfg.OutputPath,
		OutputPath:    restored,
		Password:      "battery staple",
		CipherOptions: fastCiphers,
	})
	require.ErrorIs(t, err, crypt.ErrAuthenticationFailed)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, Decrypting, stageErr.Stage)

	entries, err := os.ReadDir(restored)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRevealCleanImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clean.png")
	makeCarrier(t, path, 50, 50)

	_, err := Reveal(RevealConfig{ImagePath: path, OutputPath: dir, Password: "pw"})
	require.ErrorIs(t, err, container.ErrCorrupt)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, Extracting, stageErr.Stage)
}

func TestRevealLegacyContainer(t *testing.T) {
	dir := t.TempDir()
	carrierPath := filepath.Join(dir, "carrier.png")
	makeCarrier(t, carrierPath, 100, 100)
	plaintext := []byte(strings.Repeat("legacy payload line\n", 40))

	gz, err := packaging.NewCompressor(packaging.CompressionGzip)
	require.NoError(t, err)
	compressed, err := gz.Compress(plaintext)
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		password string
	}{
		{"encrypted", "old password"},
		{"plain", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			body := compressed
			if tc.password != "" {
				c, err := crypt.New(crypt.AESGCM, fastCiphers...)
				require.NoError(t, err)
				body, err = c.Encrypt(compressed, tc.password)
				require.NoError(t, err)
			}
			legacy, err := container.EncodeLegacy(body)
			require.NoError(t, err)

			carrier, err := stego.LoadCarrier(carrierPath)
			require.NoError(t, err)
			out, err := stego.Embed(carrier, legacy)
			require.NoError(t, err)

			stegoPath := filepath.Join(dir, tc.name+".png")
			f, err := os.Create(stegoPath)
			require.NoError(t, err)
			require.NoError(t, out.WritePNG(f))
			require.NoError(t, f.Close())

			restored := filepath.Join(dir, "restored-"+tc.name)
			require.NoError(t, os.Mkdir(restored, 0o755))
			revealed, err := Reveal(RevealConfig{
				ImagePath:     stegoPath,
				OutputPath:    restored,
				Password:      tc.password,
				CipherOptions: fastCiphers,
			})
			require.NoError(t, err)
			require.True(t, revealed.Legacy)
			require.Equal(t, "sniff", revealed.Strategy)
			require.Nil(t, revealed.Header)
			require.Equal(t, filepath.Join(restored, packaging.DefaultName), revealed.OutputPath)

			got, err := os.ReadFile(revealed.OutputPath)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}
}

func TestParityRepairsDamage(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	cfg.Parity = true
	payload := []byte("parity protects this message from a flipped bit")
	makeCarrier(t, cfg.CarrierPath, 100, 100)
	writePayload(t, cfg.PayloadPath, payload)

	result, err := Conceal(cfg)
	require.NoError(t, err)
	require.True(t, result.Header.Flags.Has(container.FlagParity))

	// The last container byte belongs to the last parity shard.
	flipContainerBit(t, cfg.OutputPath, result.ContainerBytes*8-1)

	verified, err := Verify(cfg.OutputPath)
	require.NoError(t, err)
	require.Equal(t, 1, verified.RepairedShards)
	require.True(t, verified.DigestChecked)

	restored := filepath.Join(dir, "restored")
	require.NoError(t, os.Mkdir(restored, 0o755))
	revealed, err := Reveal(RevealConfig{
		ImagePath:     cfg.OutputPath,
		OutputPath:    restored,
		Password:      cfg.Password,
		CipherOptions: fastCiphers,
	})
	require.NoError(t, err)
	require.Equal(t, 1, revealed.RepairedShards)

	got, err := os.ReadFile(revealed.OutputPath)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	makeCarrier(t, cfg.CarrierPath, 64, 64)
	writePayload(t, cfg.PayloadPath, []byte("integrity matters"))

	result, err := Conceal(cfg)
	require.NoError(t, err)

	verified, err := Verify(cfg.OutputPath)
	require.NoError(t, err)
	require.True(t, verified.DigestChecked)
	require.Zero(t, verified.RepairedShards)
	require.Equal(t, "secret.txt", verified.Metadata.Name)

	flipContainerBit(t, cfg.OutputPath, result.ContainerBytes*8-1)
	_, err = Verify(cfg.OutputPath)
	require.ErrorIs(t, err, container.ErrCorrupt)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	cfg := concealConfig(dir)
	makeCarrier(t, cfg.CarrierPath, 80, 60)
	writePayload(t, cfg.PayloadPath, []byte("inspect me"))

	info, err := Inspect(cfg.CarrierPath)
	require.NoError(t, err)
	require.Equal(t, 80, info.Width)
	require.Equal(t, 60, info.Height)
	require.Equal(t, 3, info.Channels)
	require.Equal(t, int64(1800), info.Capacity.UsableBytes)
	require.Nil(t, info.Header)

	result, err := Conceal(cfg)
	require.NoError(t, err)

	info, err = Inspect(cfg.OutputPath)
	require.NoError(t, err)
	require.NotNil(t, info.Header)
	require.Equal(t, uint8(crypt.AESGCM), info.Header.Cipher)
	require.Equal(t, "secret.txt", info.Metadata.Name)
	require.Equal(t, uint64(len("inspect me")), info.Metadata.Size)
	require.Equal(t, result.ContainerBytes, info.ContainerBytes)
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	carrier := filepath.Join(dir, "carrier.png")
	makeCarrier(t, carrier, 64, 64)

	var jobs []ConcealConfig
	for _, name := range []string{"a", "b", "c"} {
		payload := filepath.Join(dir, name+".txt")
		writePayload(t, payload, []byte("payload "+name))
		jobs = append(jobs, ConcealConfig{
			CarrierPath:   carrier,
			PayloadPath:   payload,
			OutputPath:    filepath.Join(dir, "out", name+".png"),
			Password:      "pw",
			Cipher:        crypt.AESGCM,
			CipherOptions: fastCiphers,
			Packaging:     packaging.DefaultOptions(),
		})
	}

	results, err := Batch(jobs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, jobs[i].OutputPath, r.Result.OutputPath)
		require.FileExists(t, r.Result.OutputPath)
	}

	jobs[2].OutputPath = jobs[0].OutputPath
	_, err = Batch(jobs, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "both write")
}

func TestStageString(t *testing.T) {
	require.Equal(t, "embedding", Embedding.String())
	require.Equal(t, "depackaging", Depackaging.String())

	err := &StageError{Stage: Encrypting, Err: crypt.ErrEmptyPassword}
	require.Equal(t, "encrypting failed: password must not be empty", err.Error())
	require.ErrorIs(t, err, crypt.ErrEmptyPassword)
}
