package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Stat is a read-only snapshot of a file's metadata, returned by the
// Stat op. It's a supplemented convenience -- nothing in the core
// operation set needs a file's block-chain length without opening it, but
// fsck-adjacent tooling does.
type Stat struct {
	Name   string
	Size   uint32
	Blocks int
}

// Stat returns name's metadata without opening a descriptor on it. Returns
// ErrNoEntry if name doesn't exist.
func (v *Volume) Stat(name string) (Stat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := v.findEntry(name)
	if idx < 0 {
		return Stat{}, newErr("stat", name, KindNoEntry, nil)
	}
	e := &v.super.Files[idx]

	blocks := 0
	id := e.FirstBlock
	for id != 0 {
		h, err := v.readHeader(id)
		if err != nil {
			return Stat{}, err
		}
		blocks++
		id = h.Next
	}

	return Stat{Name: e.NameString(), Size: e.Size, Blocks: blocks}, nil
}

// FreeSpace reports the volume's free list in blocks and in the file-data
// bytes those blocks represent.
func (v *Volume) FreeSpace() (blocks int64, bytes int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.freeSpace()
}
