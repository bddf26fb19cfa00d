package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Open resolves name to a directory entry -- creating one if create is
// true and none exists -- and returns a Descriptor for it. A single
// combined open call covers both lookup and creation rather than separate
// O_CREAT/O_EXCL flags, since the directory has no notion of permissions
// to gate on.
func (v *Volume) Open(name string, create bool) (Descriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !validName(name) {
		return 0, newErr("open", name, KindNameTooLong, nil)
	}

	idx := v.findEntry(name)
	if idx < 0 {
		if !create {
			return 0, newErr("open", name, KindNoEntry, nil)
		}
		var err error
		idx, err = v.createEntry(name)
		if err != nil {
			return 0, err
		}
	}

	e := &v.super.Files[idx]
	n := v.vnodeFor(e.FirstBlock, e.Size)

	of := &openFile{v: n}
	fd, err := v.allocDescriptor(of)
	if err != nil {
		v.releaseVnode(n)
		return 0, err
	}

	if logV(v.log) {
		v.log.Debugf("sfs: open %q -> fd %d", name, fd)
	}

	return fd, nil
}

// createEntry allocates a fresh single-block file, installs it in the
// first free directory slot, and returns that slot's index. The file
// count limit is enforced by the directory simply having no more slots:
// a full directory reads as ErrNoSpace. A name that is already taken
// never reaches here, since Open opens the existing entry instead.
func (v *Volume) createEntry(name string) (int, error) {
	slot := v.freeEntrySlot()
	if slot < 0 {
		return 0, newErr("open", name, KindNoSpace, nil)
	}

	first, err := v.allocBlock()
	if err != nil {
		return 0, err
	}
	if err := v.setBlockType(first, TypeFile); err != nil {
		return 0, err
	}

	v.super.Files[slot] = DirEntry{
		FirstBlock: first,
		Size:       0,
		Name:       encodeName(name),
	}

	return slot, nil
}

// Close releases fd. It is always the descriptor's own caller's
// responsibility to have finished using it; Close never fails: an fd that
// is not currently open is silently ignored.
func (v *Volume) Close(fd Descriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.descriptorAt(fd); err != nil {
		return nil
	}
	v.freeDescriptor(fd)
	return nil
}

// Remove deletes name from the directory and frees its block chain.
// Returns ErrBusy if name is currently open, and ErrNoEntry if it doesn't
// exist.
func (v *Volume) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !validName(name) {
		return newErr("remove", name, KindNameTooLong, nil)
	}

	idx := v.findEntry(name)
	if idx < 0 {
		return newErr("remove", name, KindNoEntry, nil)
	}

	e := &v.super.Files[idx]
	if v.isOpen(e.FirstBlock) {
		return newErr("remove", name, KindBusy, nil)
	}

	if err := v.freeChain(e.FirstBlock); err != nil {
		return err
	}

	*e = DirEntry{}

	if logV(v.log) {
		v.log.Debugf("sfs: removed %q", name)
	}

	return nil
}

// Rename changes old's directory entry to new, leaving its data and block
// chain untouched. If new already names a different live file, that file
// is replaced -- its block chain freed and its entry cleared -- rather
// than rejected. Returns ErrNoEntry if old doesn't exist, and ErrBusy if
// new names a currently-open file (the replacement is refused rather than
// pulling the chain out from under an open descriptor).
func (v *Volume) Rename(oldName, newName string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !validName(newName) {
		return newErr("rename", newName, KindNameTooLong, nil)
	}

	idx := v.findEntry(oldName)
	if idx < 0 {
		return newErr("rename", oldName, KindNoEntry, nil)
	}

	if existing := v.findEntry(newName); existing >= 0 && existing != idx {
		ee := &v.super.Files[existing]
		if v.isOpen(ee.FirstBlock) {
			return newErr("rename", newName, KindBusy, nil)
		}
		if err := v.freeChain(ee.FirstBlock); err != nil {
			return err
		}
		*ee = DirEntry{}
	}

	v.super.Files[idx].Name = encodeName(newName)

	return nil
}
