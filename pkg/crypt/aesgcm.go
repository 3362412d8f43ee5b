package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultPBKDF2Iterations = 100000

	saltSize = 16
	keySize  = 32

	// MaxPBKDF2Iterations bounds both the count written into new blobs and
	// the count Decrypt will accept from one.
	MaxPBKDF2Iterations = 10_000_000
)

// aesGCM is AES-256-GCM keyed with PBKDF2-SHA256.
//
// Blob layout: [salt 16][iterations u32][nonce 12][ciphertext+tag]
type aesGCM struct {
	iterations int
}

func (*aesGCM) Algorithm() Algorithm { return AESGCM }

func createHash(password string, salt []byte, iterations int) []byte {
	// 32 bytes for AES-256.
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

func (a *aesGCM) Encrypt(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if a.iterations < 1 || a.iterations > MaxPBKDF2Iterations {
		return nil, fmt.Errorf("%w: pbkdf2 iterations %d out of range", ErrInvalidOption, a.iterations)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	gcm, err := newGCM(createHash(password, salt, a.iterations))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+4+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = binary.BigEndian.AppendUint32(out, uint32(a.iterations))
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (a *aesGCM) Decrypt(blob []byte, password string) ([]byte, error) {
	if len(blob) < saltSize+4 {
		return nil, fmt.Errorf("%w: blob too short", ErrAuthenticationFailed)
	}
	salt := blob[:saltSize]
	iterations := binary.BigEndian.Uint32(blob[saltSize : saltSize+4])
	if iterations == 0 || iterations > MaxPBKDF2Iterations {
		return nil, fmt.Errorf("%w: implausible iteration count %d", ErrAuthenticationFailed, iterations)
	}

	gcm, err := newGCM(createHash(password, salt, int(iterations)))
	if err != nil {
		return nil, err
	}
	rest := blob[saltSize+4:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthenticationFailed)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption error: failed to create GCM")
	}
	return gcm, nil
}
