package crypt

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

const (
	// DefaultAgeWorkFactor matches age's own default for passphrase files.
	DefaultAgeWorkFactor = 18

	// MaxAgeWorkFactor is the largest work factor age accepts when
	// decrypting with its default identity settings.
	MaxAgeWorkFactor = 22
)

// ageCipher writes a binary age file with a single scrypt stanza.
type ageCipher struct {
	workFactor int
}

func (*ageCipher) Algorithm() Algorithm { return Age }

func (a *ageCipher) Encrypt(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if a.workFactor < 1 || a.workFactor > MaxAgeWorkFactor {
		return nil, fmt.Errorf("%w: age work factor %d out of range", ErrInvalidOption, a.workFactor)
	}

	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(a.workFactor)

	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *ageCipher) Decrypt(blob []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	identity.SetMaxWorkFactor(MaxAgeWorkFactor)

	reader, err := age.Decrypt(bytes.NewReader(blob), identity)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
