// Package chains implements Chains: a drop-safe handle over one or more
// allocator chains linked by next_chain, with restartable stream
// cursors for reading and writing the bytes they back.
package chains

import (
	"io"
	"unsafe"

	"github.com/fenilsonani/pmemalloc/internal/blockalloc"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
	"github.com/fenilsonani/pmemalloc/internal/persist"
)

// Chains is a non-persistent handle holding the head of a next_chain
// linked list of chains. Release (Go's stand-in for Rust's Drop) walks
// the list returning every chain to the allocator; it is the caller's
// responsibility to call Release exactly once, since the allocator
// performs no reference counting on BlockPointers.
type Chains struct {
	alloc *blockalloc.BlockAllocator
	head  blockptr.BlockPointer

	released bool
}

// New wraps head — already allocated via
// BlockAllocator.AllocateChain/AllocateChains — in a Chains handle.
func New(alloc *blockalloc.BlockAllocator, head blockptr.BlockPointer) *Chains {
	return &Chains{alloc: alloc, head: head}
}

// Head returns the head BlockPointer of the first chain in the list.
func (c *Chains) Head() blockptr.BlockPointer {
	return c.head
}

// Release walks head, then for each chain calls ReleaseChain and
// advances to next_chain until null, issuing psync() at the end — the
// explicit equivalent of the original's Drop impl. Calling Release more
// than once panics, since double-free is otherwise undefined behavior
// this handle is specifically meant to prevent.
func (c *Chains) Release() {
	if c.released {
		panic("chains: Release called twice on the same handle")
	}
	c.released = true

	cur := c.head
	for cur.IsNotNull() {
		next := c.alloc.Items().Get(cur).GetNextChain()
		c.alloc.ReleaseChain(cur)
		cur = next
	}
	persist.Psync()
	c.head = blockptr.Null
}

// chainSeg is one chain's head and length, as seen by the stream
// cursors below.
type chainSeg struct {
	head   blockptr.BlockPointer
	length uint16
}

// chainLengths walks the list collecting each chain's head and length,
// used by both Writer and Reader to know how many bytes each chain
// segment can hold.
func (c *Chains) chainLengths() []chainSeg {
	var segs []chainSeg
	cur := c.head
	for cur.IsNotNull() {
		meta := c.alloc.Items().Get(cur)
		length, _ := meta.ChainLengthAndBagStripeIndex()
		segs = append(segs, chainSeg{head: cur, length: length})
		cur = meta.GetNextChain()
	}
	return segs
}

// Writer returns a restartable cursor that writes sequentially across
// every block of every chain in the list, in block-size units. Each
// block write issues pwb per cache line written; completing a block
// issues pfence; Close issues psync.
func (c *Chains) Writer() *Writer {
	return &Writer{c: c, segs: c.chainLengths()}
}

// Reader returns the matching restartable read cursor.
func (c *Chains) Reader() *Reader {
	return &Reader{c: c, segs: c.chainLengths()}
}

// Writer is Chains' restartable write cursor — copy_bytes_into_chains_start.
type Writer struct {
	c         *Chains
	segs      []chainSeg
	segIdx    int
	blockIdx  uint16
	byteInBlk int
}

var _ io.Writer = (*Writer)(nil)

// Write copies p into the chain list block by block, returning
// io.ErrShortWrite if the list's total capacity is exhausted first.
func (w *Writer) Write(p []byte) (int, error) {
	blockSize := uint64(w.c.alloc.BlockSize())
	written := 0
	for written < len(p) {
		if w.segIdx >= len(w.segs) {
			return written, io.ErrShortWrite
		}
		seg := w.segs[w.segIdx]
		if w.blockIdx >= seg.length {
			w.segIdx++
			w.blockIdx = 0
			w.byteInBlk = 0
			continue
		}
		blockPtr := blockptr.New(seg.head.Index() + uint32(w.blockIdx))
		buf := w.c.alloc.BlockBytes(blockPtr)

		n := copy(buf[w.byteInBlk:], p[written:])
		for i := 0; i < n; i += int(persist.CacheLineSize()) {
			persist.Pwb(unsafe.Pointer(ptrAt(buf, w.byteInBlk+i)))
		}
		written += n
		w.byteInBlk += n

		if w.byteInBlk >= int(blockSize) {
			persist.Pfence()
			w.blockIdx++
			w.byteInBlk = 0
		}
	}
	return written, nil
}

// Close issues the closing psync the original associates with ending a
// write cursor's durability boundary.
func (w *Writer) Close() error {
	persist.Psync()
	return nil
}

// Reader is Chains' restartable read cursor — copy_bytes_from_chains_start.
type Reader struct {
	c         *Chains
	segs      []chainSeg
	segIdx    int
	blockIdx  uint16
	byteInBlk int
}

var _ io.Reader = (*Reader)(nil)

// Read copies from the chain list into p, returning io.EOF once every
// block in the list has been consumed.
func (r *Reader) Read(p []byte) (int, error) {
	blockSize := uint64(r.c.alloc.BlockSize())
	readN := 0
	for readN < len(p) {
		if r.segIdx >= len(r.segs) {
			if readN == 0 {
				return 0, io.EOF
			}
			return readN, nil
		}
		seg := r.segs[r.segIdx]
		if r.blockIdx >= seg.length {
			r.segIdx++
			r.blockIdx = 0
			r.byteInBlk = 0
			continue
		}
		blockPtr := blockptr.New(seg.head.Index() + uint32(r.blockIdx))
		buf := r.c.alloc.BlockBytes(blockPtr)

		n := copy(p[readN:], buf[r.byteInBlk:])
		readN += n
		r.byteInBlk += n

		if r.byteInBlk >= int(blockSize) {
			r.blockIdx++
			r.byteInBlk = 0
		}
	}
	return readN, nil
}

func ptrAt(buf []byte, off int) *byte {
	return &buf[off]
}
