package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
)

// On-disk layout constants and structures for the single-volume FAT-style
// file system. Every multi-byte integer is little-endian. The volume is an
// array of BlockSize blocks addressed by a BlockID; BlockID 0 always means
// "none" and never resolves to an on-disk block (block 0 is the superblock,
// reached only through Volume.superblockBytes and the Superblock struct).

const (
	// BlockSize is the fixed size of every block, including the superblock.
	BlockSize = 512

	// HeaderSize is the size of the header present at the start of every
	// block except block 0.
	HeaderSize = 12

	// DataSize is the payload available in a block after its header.
	DataSize = BlockSize - HeaderSize // 500

	// DirEntrySize is the size of one directory entry.
	DirEntrySize = 32

	// NameMax is the maximum length of a file name, NUL included.
	NameMax = 24

	// dirReservedSize is the slack at the front of a directory block's
	// payload that makes its entry array begin at the same byte offset
	// (32) as the superblock's embedded directory, so next_rootdir can
	// chain ordinary directory blocks onto it.
	dirReservedSize = DataSize - DirEntriesPerBlock*DirEntrySize // 20

	// DirEntriesPerBlock is the number of directory entries that fit in
	// one directory block's payload (minus dirReservedSize).
	DirEntriesPerBlock = 15

	// FileCountLimit is the maximum number of simultaneously live files.
	FileCountLimit = DirEntriesPerBlock

	// OpenFileLimit is the size of the descriptor table. It is larger
	// than FileCountLimit so the same file can be opened more than once.
	OpenFileLimit = 32

	// MaxFileSize is the largest size a file may grow to.
	MaxFileSize = 1<<32 - 1

	// SuperblockPaddingSize is the padding between next_rootdir and the
	// embedded directory array in the superblock.
	SuperblockPaddingSize = 32 - 8 - 4 - 4 - 4 // 12
)

// Block type tags. Stored as the first four bytes of every block header so
// that a corrupted header can be recognised without consulting any other
// structure.
var (
	TypeFree = [4]byte{0x53, 0x46, 0x55, 0xF5}
	TypeFile = [4]byte{0x53, 0x46, 0x46, 0xE6}
	TypeDir  = [4]byte{0x53, 0x46, 0x44, 0xE4}
)

// Magic is the superblock's signature, including a trailing version byte.
var Magic = [8]byte{'S', 'F', 'S', 0xB2, 0xB1, 0xB3, 0x01, 0x00}

// magicLen is the number of leading magic bytes Mount requires to match
// before it will accept a volume. Mount compares the whole Magic array,
// which is exactly magicLen bytes long; the comparison does not reference
// this constant.
const magicLen = 8

// BlockID identifies a block on the volume. Zero means "none / end of
// list". Valid block IDs begin at 1 for data blocks; block 0 is always the
// superblock and is reached only via Volume.superblockBytes, never via
// BlockID.
type BlockID uint32

// Header is the 12-byte structure at the start of every block except the
// superblock.
type Header struct {
	Type [4]byte
	Prev BlockID
	Next BlockID
}

// DirEntry is one 32-byte slot in the embedded directory.
type DirEntry struct {
	FirstBlock BlockID
	Size       uint32
	Name       [NameMax]byte
}

// Live reports whether the slot names an existing file.
func (e *DirEntry) Live() bool {
	return e.FirstBlock != 0
}

// NameString returns the NUL-terminated name as a Go string.
func (e *DirEntry) NameString() string {
	return cstring(e.Name[:])
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Superblock is the 512-byte structure at block 0. It carries no header of
// its own; its first eight bytes are the volume magic.
type Superblock struct {
	Magic       [8]byte
	NBlocks     uint32
	Freelist    BlockID
	NextRootdir BlockID
	UUID        [SuperblockPaddingSize]byte // advisory only, diagnostic use only
	Files       [DirEntriesPerBlock]DirEntry
}

// validName reports whether name (including its NUL terminator) fits in
// NameMax and contains at least one non-NUL byte.
func validName(name string) bool {
	if len(name)+1 > NameMax {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] != 0 {
			return true
		}
	}
	return false
}

func encodeName(name string) [NameMax]byte {
	var out [NameMax]byte
	copy(out[:], name)
	return out
}

// encodeHeader writes h's wire form into dst, which must be at least
// HeaderSize bytes.
func encodeHeader(dst []byte, h Header) error {
	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize)
	if err := binary.Write(buf, binary.LittleEndian, &h); err != nil {
		return err
	}
	copy(dst, buf.Bytes())
	return nil
}

// encodeSuperblock writes sb's wire form into dst, which must be at least
// BlockSize bytes.
func encodeSuperblock(dst []byte, sb Superblock) error {
	buf := new(bytes.Buffer)
	buf.Grow(BlockSize)
	if err := binary.Write(buf, binary.LittleEndian, &sb); err != nil {
		return err
	}
	copy(dst, buf.Bytes())
	return nil
}

// blocksForSize returns the number of DataSize-byte blocks needed to store
// size bytes of file content, with the empty-file convention that a
// zero-byte file still occupies exactly one block.
func blocksForSize(size uint32) int {
	if size == 0 {
		return 1
	}
	return int((uint64(size) + DataSize - 1) / DataSize)
}

// BlocksForSize is the exported form of blocksForSize, for fsck -- which
// recomputes a file's expected chain length from its directory entry's
// recorded size without going through a mounted Volume.
func BlocksForSize(size uint32) int {
	return blocksForSize(size)
}

// DecodeHeader decodes a block header from src, which must be at least
// HeaderSize bytes. Exported for fsck, which inspects a volume byte slice
// directly rather than through a mounted Volume.
func DecodeHeader(src []byte) (Header, error) {
	var h Header
	err := binary.Read(bytes.NewReader(src[:HeaderSize]), binary.LittleEndian, &h)
	return h, err
}

// DecodeSuperblock decodes the superblock from src, which must be at least
// BlockSize bytes. Exported for fsck.
func DecodeSuperblock(src []byte) (Superblock, error) {
	var sb Superblock
	err := binary.Read(bytes.NewReader(src[:BlockSize]), binary.LittleEndian, &sb)
	return sb, err
}

// EncodeSuperblock is the exported form of encodeSuperblock, for tests and
// tooling that need to hand-construct an on-disk superblock outside of a
// mounted Volume.
func EncodeSuperblock(dst []byte, sb Superblock) error {
	return encodeSuperblock(dst, sb)
}

// EncodeHeader is the exported form of encodeHeader, for tests and tooling
// that need to hand-construct an on-disk block header outside of a
// mounted Volume.
func EncodeHeader(dst []byte, h Header) error {
	return encodeHeader(dst, h)
}
