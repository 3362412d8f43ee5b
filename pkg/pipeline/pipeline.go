// Package pipeline wires packaging, encryption, the container format and
// the LSB codec into the conceal and reveal operations.
//
// Conceal runs Packaging, Encrypting, Containerizing and Embedding in that
// order; Reveal runs Extracting, Decrypting and Depackaging. The first
// failing stage stops the run and is reported as a *StageError. Output is
// only ever moved into its final name once every stage has succeeded.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/stego"
)

// Stage is a step of the conceal or reveal state machine.
type Stage int

const (
	Idle Stage = iota
	Packaging
	Encrypting
	Containerizing
	Embedding
	Extracting
	Decrypting
	Depackaging
	Done
	Failed
)

var stageNames = [...]string{
	Idle:           "idle",
	Packaging:      "packaging",
	Encrypting:     "encrypting",
	Containerizing: "containerizing",
	Embedding:      "embedding",
	Extracting:     "extracting",
	Decrypting:     "decrypting",
	Depackaging:    "depackaging",
	Done:           "done",
	Failed:         "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError is the Failed state: the stage that was running and why it
// stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrOverwritesCarrier is returned when the output path names the carrier.
var ErrOverwritesCarrier = errors.New("output would overwrite the carrier image")

func fail(stage Stage, err error) error {
	log.Debug().Err(err).Stringer("stage", stage).Msg("Pipeline failed")
	return &StageError{Stage: stage, Err: err}
}

func enter(stage Stage) {
	log.Debug().Stringer("stage", stage).Msg("Entering stage")
}

// samePath reports whether a and b name the same file. b need not exist.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// writeCarrier writes c to a temporary file beside path and renames it into
// place. The temporary file is removed on every failure path.
func writeCarrier(c *stego.Carrier, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pngstash-*.png")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = c.WritePNG(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
