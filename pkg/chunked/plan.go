package chunked

import (
	"fmt"
	"strconv"
)

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 128 * 1024 * 1024

// DefaultBufferSize is the size of the reusable read buffer.
const DefaultBufferSize = 1024 * 1024

// Plan partitions an object of Length bytes into Count blocks of BlockSize.
type Plan struct {
	Length    int64
	BlockSize int64
	Count     int

	// Legacy is set when Count was computed as floor(Length/BlockSize)+1.
	Legacy bool
}

// Block is the byte range [Start, End) assigned to one part file.
type Block struct {
	Index int // 1-based
	Start int64
	End   int64

	// Full is set when at least BlockSize bytes remain at Start. Full blocks
	// are read through the fixed buffer; the rest are bulk-copied to EOF.
	Full bool
}

// Length returns the number of bytes in the block.
func (b Block) Length() int64 {
	return b.End - b.Start
}

// NewPlan computes the block layout for an object of the given length.
//
// By default Count is ceil(length/blockSize): an exact multiple yields no
// trailing empty block and an empty object yields no blocks. With legacy set,
// Count is floor(length/blockSize)+1, which always adds one block after the
// last full one, empty when length is a multiple of blockSize.
func NewPlan(length, blockSize int64, legacy bool) (Plan, error) {
	if blockSize <= 0 {
		return Plan{}, fmt.Errorf("%w: block size %d must be positive", ErrInvalidPlan, blockSize)
	}
	if length < 0 {
		return Plan{}, fmt.Errorf("%w: negative length %d", ErrInvalidPlan, length)
	}

	var count int64
	if legacy {
		count = length/blockSize + 1
	} else {
		count = (length + blockSize - 1) / blockSize
	}

	return Plan{
		Length:    length,
		BlockSize: blockSize,
		Count:     int(count),
		Legacy:    legacy,
	}, nil
}

// Block returns the i-th block, 1 <= i <= Count.
func (p Plan) Block(i int) Block {
	start := int64(i-1) * p.BlockSize
	if start > p.Length {
		start = p.Length
	}
	end := start + p.BlockSize
	if end > p.Length {
		end = p.Length
	}
	return Block{
		Index: i,
		Start: start,
		End:   end,
		Full:  p.Length-start >= p.BlockSize,
	}
}

// Blocks returns every block in index order.
func (p Plan) Blocks() []Block {
	blocks := make([]Block, 0, p.Count)
	for i := 1; i <= p.Count; i++ {
		blocks = append(blocks, p.Block(i))
	}
	return blocks
}

// NameFunc returns the local file name for a 1-based block index.
type NameFunc func(index int) string

// PartName returns "<base>.part<index>".
func PartName(base string, index int) string {
	return base + ".part" + strconv.Itoa(index)
}

// PartNames returns a NameFunc producing PartName(base, i).
func PartNames(base string) NameFunc {
	return func(index int) string {
		return PartName(base, index)
	}
}
