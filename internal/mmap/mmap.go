// Package mmap memory-maps a disk image file for the engine's read-write
// volume and fsck's read-only volume. It is a thin wrapper over
// golang.org/x/sys/unix: explicit Close, no finalizer, errors returned
// rather than panics.
package mmap

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Map is a memory-mapped view of a file's contents.
type Map struct {
	data     []byte
	readonly bool
}

// OpenReadWrite maps the entirety of f for reading and writing. f must
// already be open with read-write permissions and sized to at least size
// bytes; the mapping's length is size.
func OpenReadWrite(f *os.File, size int) (*Map, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	return &Map{data: data}, nil
}

// OpenReadOnly maps the entirety of f for reading only. Used by fsck, which
// must never modify the volume it's checking.
func OpenReadOnly(f *os.File, size int) (*Map, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	return &Map{data: data, readonly: true}, nil
}

// Bytes returns the mapped region. Callers must not retain slices derived
// from it past Close.
func (m *Map) Bytes() []byte {
	return m.data
}

// ReadOnly reports whether the mapping was opened with OpenReadOnly.
func (m *Map) ReadOnly() bool {
	return m.readonly
}

// Sync flushes dirty pages back to the backing file. A no-op on a read-only
// mapping.
func (m *Map) Sync() error {
	if m.readonly || m.data == nil {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "msync")
	}
	return nil
}

// Close flushes (for a read-write mapping) and unmaps the region. Close is
// idempotent; calling it more than once is a no-op.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	var syncErr error
	if !m.readonly {
		syncErr = m.Sync()
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if syncErr != nil {
		return syncErr
	}
	if err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}
