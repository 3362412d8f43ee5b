package crypt

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for new blobs. Memory is in KiB.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonMaxMem  = 1024 * 1024
	argonMaxTime = 16
)

// xchacha is XChaCha20-Poly1305 keyed with Argon2id.
//
// Blob layout: [salt 16][time u8][memory KiB u32][threads u8][nonce 24][ciphertext+tag]
type xchacha struct{}

const xchachaParamsSize = saltSize + 1 + 4 + 1

func (xchacha) Algorithm() Algorithm { return XChaCha20 }

func (xchacha) Encrypt(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	threads := uint8(min(runtime.NumCPU(), 4))
	header := make([]byte, xchachaParamsSize, xchachaParamsSize+chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(header[:saltSize]); err != nil {
		return nil, err
	}
	header[saltSize] = argonTime
	binary.BigEndian.PutUint32(header[saltSize+1:], argonMemory)
	header[saltSize+5] = threads

	key := argon2.IDKey([]byte(password), header[:saltSize], argonTime, argonMemory, threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := append(header, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func (xchacha) Decrypt(blob []byte, password string) ([]byte, error) {
	if len(blob) < xchachaParamsSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: blob too short", ErrAuthenticationFailed)
	}
	salt := blob[:saltSize]
	time := uint32(blob[saltSize])
	memory := binary.BigEndian.Uint32(blob[saltSize+1:])
	threads := blob[saltSize+5]
	if time == 0 || time > argonMaxTime || memory == 0 || memory > argonMaxMem || threads == 0 {
		return nil, fmt.Errorf("%w: implausible key derivation parameters", ErrAuthenticationFailed)
	}

	key := argon2.IDKey([]byte(password), salt, time, memory, threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	rest := blob[xchachaParamsSize:]
	nonce, ciphertext := rest[:chacha20poly1305.NonceSizeX], rest[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
