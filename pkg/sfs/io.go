package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "io"

// blockAtIndex walks the chain starting at first and returns the id of the
// blockIndex'th block (0-based). Returns 0 if the chain is shorter than
// blockIndex+1 blocks.
func (v *Volume) blockAtIndex(first BlockID, blockIndex int) (BlockID, error) {
	id := first
	for i := 0; i < blockIndex; i++ {
		if id == 0 {
			return 0, nil
		}
		h, err := v.readHeader(id)
		if err != nil {
			return 0, err
		}
		id = h.Next
	}
	return id, nil
}

// seekTo repositions of.currBlock to the block holding byte of.offset,
// always walking forward from the vnode's first block; a previously cached
// currBlock is not used as a starting point. This is the "lazy
// repositioning" named in SPEC_FULL.md: Seek only updates of.offset (and
// clears currBlock), and the chain isn't walked until the next Read/Write
// actually needs a block.
func (v *Volume) seekTo(of *openFile) (BlockID, int, error) {
	wantIndex := int(of.offset / DataSize)
	within := int(of.offset % DataSize)

	id, err := v.blockAtIndex(of.v.first, wantIndex)
	if err != nil {
		return 0, 0, err
	}
	of.currBlock = id
	return id, within, nil
}

// Read reads up to len(p) bytes starting at fd's current offset, advancing
// the offset by the number of bytes read. Returns io.EOF once offset
// equals the file's size.
func (v *Volume) Read(fd Descriptor, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	of, err := v.descriptorAt(fd)
	if err != nil {
		return 0, err
	}

	if of.offset >= of.v.size {
		return 0, io.EOF
	}

	total := 0
	for total < len(p) && of.offset < of.v.size {
		id, within, err := v.seekTo(of)
		if err != nil {
			return total, err
		}
		if id == 0 {
			// Chain shorter than the recorded size: corrupt volume.
			return total, newErr("read", "", KindCorrupt, nil)
		}

		remaining := int(of.v.size - of.offset)
		chunk := DataSize - within
		if chunk > remaining {
			chunk = remaining
		}
		if chunk > len(p)-total {
			chunk = len(p) - total
		}

		data := v.blockData(id)
		copy(p[total:total+chunk], data[within:within+chunk])

		total += chunk
		of.offset += uint32(chunk)
	}

	return total, nil
}

// Write writes len(p) bytes at fd's current offset, growing the file (and
// allocating new blocks) if the write extends past the current size, and
// advances the offset by len(p). Returns ErrTooLarge if the write would
// grow the file past MaxFileSize.
//
// Writes are all-or-nothing: if the write needs more blocks than the free
// list has, growChainTo allocates every additional block before any byte
// of p is copied and fails without touching the chain or the recorded
// size, so a NOSPC write never leaves the file longer than its size
// implies.
func (v *Volume) Write(fd Descriptor, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	of, err := v.descriptorAt(fd)
	if err != nil {
		return 0, err
	}

	end := uint64(of.offset) + uint64(len(p))
	if end > MaxFileSize {
		return 0, newErr("write", "", KindTooLarge, nil)
	}

	if uint32(end) > of.v.size {
		if err := v.growChainTo(of.v.first, uint32(end)); err != nil {
			return 0, err
		}
	}

	total := 0
	for total < len(p) {
		wantIndex := int(of.offset / DataSize)
		within := int(of.offset % DataSize)

		id, err := v.blockAtIndex(of.v.first, wantIndex)
		if err != nil {
			return total, err
		}
		of.currBlock = id

		chunk := DataSize - within
		if chunk > len(p)-total {
			chunk = len(p) - total
		}

		data := v.blockData(id)
		copy(data[within:within+chunk], p[total:total+chunk])

		total += chunk
		of.offset += uint32(chunk)
	}

	if of.offset > of.v.size {
		of.v.size = of.offset
		if err := v.setEntrySize(of.v.first, of.v.size); err != nil {
			return total, err
		}
	}

	return total, nil
}

// growChainTo extends the chain starting at first, if necessary, so that
// it has enough blocks to hold size bytes. Every block the growth needs is
// allocated and spliced onto the tail before this function returns, so
// callers never see a chain grown by only part of what a write asked for.
//
// If the free list runs out partway through, every block allocated by
// this call is freed again, in the reverse order it was allocated -- which
// restores the free list to the exact state (including block order) it
// was in before the call, since allocBlock always pops the current head
// and freeBlock always pushes back onto it -- and the original tail's Next
// is restored to 0 before the error is returned.
func (v *Volume) growChainTo(first BlockID, size uint32) error {
	last := first
	count := 1
	for {
		h, err := v.readHeader(last)
		if err != nil {
			return err
		}
		if h.Next == 0 {
			break
		}
		last = h.Next
		count++
	}

	need := blocksForSize(size) - count
	if need <= 0 {
		return nil
	}

	typ, err := v.blockType(first)
	if err != nil {
		return err
	}

	allocated := make([]BlockID, 0, need)
	tail := last
	for i := 0; i < need; i++ {
		id, err := v.allocBlock()
		if err != nil {
			v.rollbackGrowth(last, allocated)
			return err
		}
		// id is now off the free list; track it so a later failure in
		// this iteration still frees it on rollback.
		allocated = append(allocated, id)

		if err := v.writeHeader(id, Header{Type: typ, Prev: tail}); err != nil {
			v.rollbackGrowth(last, allocated)
			return err
		}
		th, err := v.readHeader(tail)
		if err != nil {
			v.rollbackGrowth(last, allocated)
			return err
		}
		th.Next = id
		if err := v.writeHeader(tail, th); err != nil {
			v.rollbackGrowth(last, allocated)
			return err
		}
		tail = id
	}

	return nil
}

// rollbackGrowth undoes a partial growChainTo: it frees every block in
// allocated, in reverse order, and restores originalTail's Next to 0.
func (v *Volume) rollbackGrowth(originalTail BlockID, allocated []BlockID) {
	for i := len(allocated) - 1; i >= 0; i-- {
		_ = v.freeBlock(allocated[i])
	}
	if len(allocated) == 0 {
		return
	}
	th, err := v.readHeader(originalTail)
	if err != nil {
		return
	}
	th.Next = 0
	_ = v.writeHeader(originalTail, th)
}

// Seek repositions fd's cursor per whence (io.SeekStart/Current/End),
// clamping the result to [0, size]. It never walks the block chain
// itself; see seekTo.
func (v *Volume) Seek(fd Descriptor, offset int64, whence int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	of, err := v.descriptorAt(fd)
	if err != nil {
		return 0, err
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(of.offset) + offset
	case io.SeekEnd:
		abs = int64(of.v.size) + offset
	default:
		return 0, newErr("seek", "", KindInvalidArgument, nil)
	}

	if abs < 0 {
		abs = 0
	}
	if abs > int64(of.v.size) {
		abs = int64(of.v.size)
	}

	of.offset = uint32(abs)
	of.currBlock = 0

	return abs, nil
}

// GetPos returns fd's current offset without altering it.
func (v *Volume) GetPos(fd Descriptor) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	of, err := v.descriptorAt(fd)
	if err != nil {
		return 0, err
	}
	return int64(of.offset), nil
}
