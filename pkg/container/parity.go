package container

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/zeebo/blake3"
)

// Reed-Solomon configuration for the parity frame.
const (
	rsDataShards   = 4
	rsParityShards = 2
	rsTotalShards  = rsDataShards + rsParityShards

	shardSumSize = 8
	paritySums   = rsTotalShards * shardSumSize
)

// AddParity wraps data in a Reed-Solomon frame:
//
//	[shard checksums (6 x 8 bytes)][shard 0]...[shard 5]
//
// The data shards carry an 8-byte length prefix followed by data so the
// padding added by splitting can be removed again. Each checksum is a
// truncated BLAKE3 digest; a shard whose checksum does not match is treated
// as an erasure and rebuilt from the others.
func AddParity(data []byte) ([]byte, error) {
	enc, err := reedsolomon.New(rsDataShards, rsParityShards)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 8, 8+len(data))
	binary.BigEndian.PutUint64(payload, uint64(len(data)))
	payload = append(payload, data...)

	shards, err := enc.Split(payload)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}

	shardSize := len(shards[0])
	frame := make([]byte, paritySums, paritySums+rsTotalShards*shardSize)
	for i, shard := range shards {
		copy(frame[i*shardSumSize:], shardSum(shard))
	}
	for _, shard := range shards {
		frame = append(frame, shard...)
	}
	return frame, nil
}

// RemoveParity verifies a frame produced by AddParity, rebuilds up to two
// damaged shards and returns the original data.
func RemoveParity(frame []byte) ([]byte, error) {
	if len(frame) <= paritySums || (len(frame)-paritySums)%rsTotalShards != 0 {
		return nil, fmt.Errorf("%w: parity frame of %d bytes", ErrCorrupt, len(frame))
	}
	enc, err := reedsolomon.New(rsDataShards, rsParityShards)
	if err != nil {
		return nil, err
	}

	shardSize := (len(frame) - paritySums) / rsTotalShards
	shards := make([][]byte, rsTotalShards)
	damaged := 0
	for i := range shards {
		start := paritySums + i*shardSize
		shard := make([]byte, shardSize)
		copy(shard, frame[start:start+shardSize])

		want := frame[i*shardSumSize : (i+1)*shardSumSize]
		if string(shardSum(shard)) != string(want) {
			damaged++
			continue
		}
		shards[i] = shard
	}

	if damaged > rsParityShards {
		return nil, fmt.Errorf("%w: %d of %d shards damaged", ErrCorrupt, damaged, rsTotalShards)
	}
	if damaged > 0 {
		if err := enc.Reconstruct(shards); err != nil {
			return nil, fmt.Errorf("%w: reconstruct: %v", ErrCorrupt, err)
		}
	}
	if ok, err := enc.Verify(shards); err != nil || !ok {
		return nil, fmt.Errorf("%w: parity mismatch", ErrCorrupt)
	}

	joined := make([]byte, 0, rsDataShards*shardSize)
	for i := 0; i < rsDataShards; i++ {
		joined = append(joined, shards[i]...)
	}

	length := binary.BigEndian.Uint64(joined[:8])
	if length > uint64(len(joined)-8) {
		return nil, fmt.Errorf("%w: parity payload length %d exceeds %d", ErrCorrupt, length, len(joined)-8)
	}
	return joined[8 : 8+int(length)], nil
}

// ParityDamage reports how many shards of a parity frame fail their
// checksum, without attempting repair.
func ParityDamage(frame []byte) (int, error) {
	if len(frame) <= paritySums || (len(frame)-paritySums)%rsTotalShards != 0 {
		return 0, fmt.Errorf("%w: parity frame of %d bytes", ErrCorrupt, len(frame))
	}
	shardSize := (len(frame) - paritySums) / rsTotalShards
	damaged := 0
	for i := 0; i < rsTotalShards; i++ {
		start := paritySums + i*shardSize
		if string(shardSum(frame[start:start+shardSize])) != string(frame[i*shardSumSize:(i+1)*shardSumSize]) {
			damaged++
		}
	}
	return damaged, nil
}

func shardSum(shard []byte) []byte {
	sum := blake3.Sum256(shard)
	return sum[:shardSumSize]
}
