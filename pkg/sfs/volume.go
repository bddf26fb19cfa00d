package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vorteil-labs/sfs/internal/elog"
	"github.com/vorteil-labs/sfs/internal/mmap"
)

// Volume is a mounted SFS file system. It owns a memory-mapped view of the
// backing disk image and the in-memory tables (descriptors, v-nodes) that
// track open files. The zero Volume is not usable; obtain one from Mount or
// Format+Mount.
type Volume struct {
	path string
	f    *os.File
	m    *mmap.Map
	data []byte

	log elog.View

	mu    sync.Mutex
	super Superblock

	descriptors [OpenFileLimit]*openFile
	vnodes      map[BlockID]*vnode
}

// Format initializes a new, empty volume of nblocks blocks (including the
// superblock) in the file at path, which is created or truncated to the
// required size. nblocks must be at least 2: one for the superblock, one
// for the free list's minimum content. log may be nil.
func Format(path string, nblocks uint32, log elog.View) error {
	if nblocks < 2 {
		return newErr("format", path, KindInvalidArgument, nil)
	}

	size := int64(nblocks) * BlockSize
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return wrapIO("format", path, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return wrapIO("format", path, err)
	}

	m, err := mmap.OpenReadWrite(f, int(size))
	if err != nil {
		return wrapIO("format", path, err)
	}
	defer m.Close()

	data := m.Bytes()

	var sb Superblock
	sb.Magic = Magic
	sb.NBlocks = nblocks
	sb.NextRootdir = 0 // the embedded directory is all FileCountLimit slots

	id, err := uuid.NewRandom()
	if err == nil {
		copy(sb.UUID[:], id[:])
	}

	// Every block but the superblock starts life on the free list, linked
	// in ascending order so allocation and free-list sanity are easy to
	// reason about.
	var prev BlockID
	for i := uint32(1); i < nblocks; i++ {
		id := BlockID(i)
		h := Header{Type: TypeFree, Prev: prev}
		if i+1 < nblocks {
			h.Next = BlockID(i + 1)
		}
		off := int(id) * BlockSize
		if err := encodeHeader(data[off:off+HeaderSize], h); err != nil {
			return wrapIO("format", path, err)
		}
		prev = id
	}
	if nblocks > 1 {
		sb.Freelist = 1
	}

	if err := encodeSuperblock(data[:BlockSize], sb); err != nil {
		return wrapIO("format", path, err)
	}

	if logV(log) {
		log.Infof("sfs: formatted %s: %d blocks", path, nblocks)
	}

	return m.Sync()
}

// Mount opens the volume at path, memory-maps it, and validates its
// superblock magic. log may be nil, in which case diagnostics are
// discarded.
func Mount(path string, log elog.View) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, wrapIO("mount", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapIO("mount", path, err)
	}
	if info.Size() < BlockSize || info.Size()%BlockSize != 0 {
		f.Close()
		return nil, newErr("mount", path, KindCorrupt, errors.New("size is not a positive multiple of the block size"))
	}

	m, err := mmap.OpenReadWrite(f, int(info.Size()))
	if err != nil {
		f.Close()
		return nil, wrapIO("mount", path, err)
	}

	v := &Volume{
		path:   path,
		f:      f,
		m:      m,
		data:   m.Bytes(),
		log:    log,
		vnodes: make(map[BlockID]*vnode),
	}

	sb, err := v.readSuperblock()
	if err != nil {
		m.Close()
		f.Close()
		return nil, err
	}
	if sb.Magic != Magic {
		m.Close()
		f.Close()
		return nil, newErr("mount", path, KindCorrupt, errors.New("bad magic"))
	}
	expectBlocks := uint32(info.Size() / BlockSize)
	if sb.NBlocks != expectBlocks {
		m.Close()
		f.Close()
		return nil, newErr("mount", path, KindCorrupt, errors.New("superblock block count does not match file size"))
	}
	v.super = sb

	if logV(log) {
		log.Infof("sfs: mounted %s: %d blocks", path, sb.NBlocks)
	}

	return v, nil
}

// Unmount flushes the volume to disk and releases its mapping. It refuses
// with ErrBusy if any descriptor is still open -- see DESIGN.md "Open
// question decisions" for the rationale.
func Unmount(v *Volume) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, d := range v.descriptors {
		if d != nil {
			return newErr("unmount", v.path, KindBusy, nil)
		}
	}

	if err := v.writeSuperblock(); err != nil {
		return err
	}
	if err := v.m.Close(); err != nil {
		v.f.Close()
		return wrapIO("unmount", v.path, err)
	}
	if err := v.f.Close(); err != nil {
		return wrapIO("unmount", v.path, err)
	}

	if logV(v.log) {
		v.log.Infof("sfs: unmounted %s", v.path)
	}

	return nil
}

func logV(log elog.View) bool {
	return log != nil
}
