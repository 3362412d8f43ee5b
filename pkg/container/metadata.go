package container

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// DigestSize is the length of a body digest.
const DigestSize = 32

// Metadata describes the packaged payload. It is stored as a CBOR record
// with integer keys so it stays compact inside small carriers.
type Metadata struct {
	// Name is the base name of the original file or directory.
	Name string `cbor:"1,keyasint"`
	// Size is the original size in bytes (the archive size for directories).
	Size uint64 `cbor:"2,keyasint"`
	// Mode holds the permission bits of the original file.
	Mode uint32 `cbor:"3,keyasint,omitempty"`
	// Files is the number of regular files in an archived directory.
	Files int `cbor:"4,keyasint,omitempty"`
	// Digest is the BLAKE3 digest of the body before any parity frame was
	// applied.
	Digest []byte `cbor:"5,keyasint,omitempty"`
	// Type is a coarse category such as text, image or directory.
	Type string `cbor:"6,keyasint,omitempty"`
	// MIME is the media type guessed from the original name.
	MIME string `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding: the same metadata always produces the
	// same bytes, and therefore the same carrier modifications.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("container: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic("container: CBOR decoder initialization failed: " + err.Error())
	}
}

func (m *Metadata) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return data, nil
}

func UnmarshalMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	if m.Digest != nil && len(m.Digest) != DigestSize {
		return nil, fmt.Errorf("%w: metadata digest is %d bytes", ErrCorrupt, len(m.Digest))
	}
	return &m, nil
}

// Digest returns the BLAKE3-256 digest of body.
func Digest(body []byte) []byte {
	sum := blake3.Sum256(body)
	return sum[:]
}

// VerifyDigest reports whether body matches the digest recorded in m. A
// record without a digest verifies trivially.
func (m *Metadata) VerifyDigest(body []byte) bool {
	if m == nil || len(m.Digest) == 0 {
		return true
	}
	return bytes.Equal(m.Digest, Digest(body))
}
