package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Descriptor identifies an open file, returned by Open and consumed by
// Read/Write/Seek/GetPos/Close. It indexes v.descriptors; 0 is never
// issued, so the zero value is safely "no descriptor".
type Descriptor int

// vnode is the per-file state shared by every descriptor open on the same
// file (identified by its first block, which never changes across writes
// or renames -- only Remove, or a Rename that replaces the file, ever frees
// it). It exists so that two
// descriptors on the same file observe a consistent size, and so remove
// can tell whether a file is still referenced.
type vnode struct {
	first    BlockID
	size     uint32
	refcount int
}

// openFile is the per-descriptor state: its own cursor and a pointer to
// the vnode it was opened against.
type openFile struct {
	v         *vnode
	offset    uint32
	currBlock BlockID // block used by the last Read/Write chunk; 0 after Seek. Recorded only: seekTo always walks from first
}

// vnodeFor returns the vnode for the file whose embedded directory entry is
// at first, creating it on first reference and bumping its refcount.
func (vol *Volume) vnodeFor(first BlockID, size uint32) *vnode {
	if n, ok := vol.vnodes[first]; ok {
		n.refcount++
		return n
	}
	n := &vnode{first: first, size: size, refcount: 1}
	vol.vnodes[first] = n
	return n
}

// releaseVnode drops a reference to n, removing it from the table once
// nothing references it anymore.
func (vol *Volume) releaseVnode(n *vnode) {
	n.refcount--
	if n.refcount <= 0 {
		delete(vol.vnodes, n.first)
	}
}

// isOpen reports whether any descriptor currently references the file
// whose embedded directory entry's first block is `first`. Used by
// Remove and Rename to enforce the Busy guard.
func (vol *Volume) isOpen(first BlockID) bool {
	n, ok := vol.vnodes[first]
	return ok && n.refcount > 0
}

// allocDescriptor finds a free slot in the descriptor table and installs
// of, returning the Descriptor that names it. Returns ErrTooManyOpenFiles
// if the table is full.
func (vol *Volume) allocDescriptor(of *openFile) (Descriptor, error) {
	for i, d := range vol.descriptors {
		if d == nil {
			vol.descriptors[i] = of
			return Descriptor(i + 1), nil
		}
	}
	return 0, newErr("open", "", KindTooManyOpenFiles, nil)
}

// descriptorAt resolves fd to its openFile, or an error if fd is not
// currently open.
func (vol *Volume) descriptorAt(fd Descriptor) (*openFile, error) {
	if fd <= 0 || int(fd) > len(vol.descriptors) {
		return nil, newErr("", "", KindBadDescriptor, nil)
	}
	of := vol.descriptors[fd-1]
	if of == nil {
		return nil, newErr("", "", KindBadDescriptor, nil)
	}
	return of, nil
}

// freeDescriptor removes fd from the table and releases its vnode
// reference.
func (vol *Volume) freeDescriptor(fd Descriptor) {
	of := vol.descriptors[fd-1]
	vol.descriptors[fd-1] = nil
	if of != nil {
		vol.releaseVnode(of.v)
	}
}
