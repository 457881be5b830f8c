package blockalloc

import "github.com/fenilsonani/pmemalloc/internal/blockptr"

// BlockSize is the allocation granularity for a region, fixed once at
// initialization. Only these five values are supported — matching the
// set cache-line alignment and vector-unit friendliness make sensible.
type BlockSize uint32

const (
	BlockSize64   BlockSize = 64
	BlockSize128  BlockSize = 128
	BlockSize256  BlockSize = 256
	BlockSize512  BlockSize = 512
	BlockSize4096 BlockSize = 4096
)

// IsValid reports whether bs is one of the supported block sizes.
func (bs BlockSize) IsValid() bool {
	switch bs {
	case BlockSize64, BlockSize128, BlockSize256, BlockSize512, BlockSize4096:
		return true
	default:
		return false
	}
}

// pageAlignment is the alignment granularity the region's header and
// blocks area are padded to.
const pageAlignment = 4096

// metaRecordSize is the on-medium size of one BlockMetaData record:
// packed_word, next_in_bag, next_chain are each 4 bytes (12 bytes),
// padded to a 16-byte alignment.
const metaRecordSize = 16

// headerRawSize is the unpadded size of the BlockAllocator header:
// version, block_size, N, base_offset, meta_offset and the Bags
// stripe-count field. OffsetToBlocks pads it up to one page.
const headerRawSize = 4 + 4 + 8 + 8 + 8 + 4

func roundUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// BlocksRequired returns ceil(bytes/blockSize), the number of blocks
// needed to satisfy a byte-sized request.
func (bs BlockSize) BlocksRequired(bytes uint64) uint64 {
	size := uint64(bs)
	if bytes == 0 {
		return 0
	}
	return (bytes + size - 1) / size
}

// OffsetToBlocks is the byte offset from the region base to the start
// of the blocks area: the header, padded up to a page.
func OffsetToBlocks() uint64 {
	return roundUp(headerRawSize, pageAlignment)
}

// MetaBase returns the byte offset from the region base to the start of
// the metadata area, given N blocks of the given size.
func MetaBase(n uint64, blockSize BlockSize) uint64 {
	blocksEnd := OffsetToBlocks() + n*uint64(blockSize)
	return roundUp(blocksEnd, pageAlignment)
}

// SizeOf returns the total bytes a region must provide to hold N blocks
// of blockSize: header + blocks area (page-padded) + metadata area.
func SizeOf(n uint64, blockSize BlockSize) uint64 {
	return MetaBase(n, blockSize) + n*metaRecordSize
}

// MaximumNumberOfBlocks is the pure sizing helper bootstraps use to
// figure out how many blocks of blockSize fit in a region of
// capacityBytes, bounded by the compressed pointer's addressable range.
func MaximumNumberOfBlocks(capacityBytes uint64, blockSize BlockSize) uint64 {
	offsetToBlocks := OffsetToBlocks()
	if capacityBytes <= offsetToBlocks {
		return 0
	}

	// Binary search the largest N such that SizeOf(N, blockSize) <=
	// capacityBytes, since blocks and metadata grow together.
	lo, hi := uint64(0), blockptr.InclusiveMaximumNumberOfBlocks
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if SizeOf(mid, blockSize) <= capacityBytes {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo > blockptr.InclusiveMaximumNumberOfBlocks {
		return blockptr.InclusiveMaximumNumberOfBlocks
	}
	return lo
}
