package stego

import "errors"

var errStepperExhausted = errors.New("more steps taken than channels in the image")

// imageStepper walks the carrier's channel values in the fixed scan order
// shared by embedding and extraction: rows top to bottom, pixels left to
// right, then channels in order. Alpha is never visited.
type imageStepper struct {
	carrier      *Carrier
	x            int
	y            int
	channel      int
	numBitsTaken int64
}

func makeImageStepper(c *Carrier) *imageStepper {
	return &imageStepper{carrier: c}
}

// next returns the pix offset of the current channel and advances.
func (s *imageStepper) next() (int, error) {
	if s.y >= s.carrier.height {
		return 0, errStepperExhausted
	}
	offset := s.carrier.channelOffset(s.x, s.y, s.channel)
	s.numBitsTaken++

	s.channel++
	if s.channel >= s.carrier.channels {
		s.channel = 0
		s.x++
		if s.x >= s.carrier.width {
			s.x = 0
			s.y++
		}
	}
	return offset, nil
}

// remainingBits is how many channel LSBs are left to visit.
func (s *imageStepper) remainingBits() int64 {
	return numBitsAvailable(s.carrier.width, s.carrier.height, s.carrier.channels, 1) - s.numBitsTaken
}
