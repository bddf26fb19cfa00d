package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// The directory is the superblock's embedded Files array: FileCountLimit
// equals DirEntriesPerBlock, so the volume never needs more entries than
// the superblock already carries, and NextRootdir is never followed by
// this implementation -- it is preserved on disk for format fidelity but
// always written as 0. The directory is a flat, small, unsorted table, so
// lookups are linear scans; there are at most FileCountLimit live entries
// to scan.

// findEntry returns the index of the live entry named name, or -1 if none
// exists.
func (v *Volume) findEntry(name string) int {
	for i := range v.super.Files {
		e := &v.super.Files[i]
		if e.Live() && e.NameString() == name {
			return i
		}
	}
	return -1
}

// freeEntrySlot returns the index of an unused directory slot, or -1 if
// the directory is full.
func (v *Volume) freeEntrySlot() int {
	for i := range v.super.Files {
		if !v.super.Files[i].Live() {
			return i
		}
	}
	return -1
}

// setEntrySize updates the Size field of the directory entry whose
// FirstBlock is first. Returns ErrCorrupt if no such entry exists, which
// would mean an open file's directory entry vanished out from under it.
func (v *Volume) setEntrySize(first BlockID, size uint32) error {
	for i := range v.super.Files {
		e := &v.super.Files[i]
		if e.Live() && e.FirstBlock == first {
			e.Size = size
			return nil
		}
	}
	return newErr("write", "", KindCorrupt, nil)
}
