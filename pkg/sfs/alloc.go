package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Free blocks form a doubly-linked list threaded through the same
// Prev/Next header fields a block uses for its file or directory chain
// once allocated -- a block's header always describes whichever list it
// currently belongs to, never both at once. v.super.Freelist is the head.

// allocBlock pops and returns the head of the free list, retagging it
// TypeFree still (the caller is responsible for calling setBlockType once
// it knows whether the block will hold file or directory data) and
// clearing its link fields so it starts life as a standalone one-block
// chain. Returns ErrNoSpace if the free list is empty.
func (v *Volume) allocBlock() (BlockID, error) {
	id := v.super.Freelist
	if id == 0 {
		return 0, newErr("write", "", KindNoSpace, nil)
	}

	h, err := v.readHeader(id)
	if err != nil {
		return 0, err
	}

	v.super.Freelist = h.Next
	if h.Next != 0 {
		nh, err := v.readHeader(h.Next)
		if err != nil {
			return 0, err
		}
		nh.Prev = 0
		if err := v.writeHeader(h.Next, nh); err != nil {
			return 0, err
		}
	}

	if err := v.writeHeader(id, Header{Type: TypeFree}); err != nil {
		return 0, err
	}

	return id, nil
}

// freeBlock pushes id onto the head of the free list and retags it
// TypeFree.
func (v *Volume) freeBlock(id BlockID) error {
	head := v.super.Freelist
	if err := v.writeHeader(id, Header{Type: TypeFree, Next: head}); err != nil {
		return err
	}
	if head != 0 {
		hh, err := v.readHeader(head)
		if err != nil {
			return err
		}
		hh.Prev = id
		if err := v.writeHeader(head, hh); err != nil {
			return err
		}
	}
	v.super.Freelist = id
	return nil
}

// freeChain walks the block chain starting at first (following Next links)
// and returns every block to the free list. Used by Remove, and by Rename
// when it replaces an existing target.
func (v *Volume) freeChain(first BlockID) error {
	id := first
	for id != 0 {
		h, err := v.readHeader(id)
		if err != nil {
			return err
		}
		next := h.Next
		if err := v.freeBlock(id); err != nil {
			return err
		}
		id = next
	}
	return nil
}

// freeSpace reports the number of blocks on the free list and the bytes of
// file payload they represent.
func (v *Volume) freeSpace() (blocks int64, bytes int64) {
	id := v.super.Freelist
	for id != 0 {
		h, err := v.readHeader(id)
		if err != nil {
			break
		}
		blocks++
		id = h.Next
	}
	return blocks, blocks * DataSize
}
