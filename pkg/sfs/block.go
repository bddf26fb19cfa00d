package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// superblockBytes returns the raw 512-byte slice at block 0.
func (v *Volume) superblockBytes() []byte {
	return v.data[0:BlockSize]
}

// blockBytes returns the raw BlockSize-byte slice for a data/directory/free
// block. id must be nonzero and below the volume's block count.
func (v *Volume) blockBytes(id BlockID) []byte {
	off := int(id) * BlockSize
	return v.data[off : off+BlockSize]
}

// readSuperblock decodes the superblock struct from block 0.
func (v *Volume) readSuperblock() (Superblock, error) {
	sb, err := DecodeSuperblock(v.superblockBytes())
	if err != nil {
		return sb, wrapIO("mount", v.path, err)
	}
	return sb, nil
}

// writeSuperblock re-encodes v.super over block 0.
func (v *Volume) writeSuperblock() error {
	if err := encodeSuperblock(v.superblockBytes(), v.super); err != nil {
		return wrapIO("sync", v.path, err)
	}
	return nil
}

// readHeader decodes the header of block id.
func (v *Volume) readHeader(id BlockID) (Header, error) {
	h, err := DecodeHeader(v.blockBytes(id))
	if err != nil {
		return h, wrapIO("read", v.path, err)
	}
	return h, nil
}

// writeHeader re-encodes h over the header of block id.
func (v *Volume) writeHeader(id BlockID, h Header) error {
	if err := encodeHeader(v.blockBytes(id)[:HeaderSize], h); err != nil {
		return wrapIO("write", v.path, err)
	}
	return nil
}

// blockType reports the tag recorded in block id's header: TypeFree,
// TypeFile, or TypeDir. The tag is returned as stored; the engine does
// not check it against those three values, and a block with any other tag
// is not rejected here (fsck reports such a block as a Finding).
func (v *Volume) blockType(id BlockID) ([4]byte, error) {
	h, err := v.readHeader(id)
	if err != nil {
		return [4]byte{}, err
	}
	return h.Type, nil
}

// setBlockType rewrites only the type tag of block id's header, preserving
// its prev/next links.
func (v *Volume) setBlockType(id BlockID, typ [4]byte) error {
	h, err := v.readHeader(id)
	if err != nil {
		return err
	}
	h.Type = typ
	return v.writeHeader(id, h)
}

// blockData returns the payload region (after the header) of block id.
func (v *Volume) blockData(id BlockID) []byte {
	return v.blockBytes(id)[HeaderSize:]
}
