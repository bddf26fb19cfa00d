// Package fsck implements an offline consistency checker for sfs volumes.
// It never mutates the image it inspects -- it opens a read-only memory
// mapping and walks the same three structures the engine itself trusts
// (the free list, the embedded directory, and each live file's block
// chain), recording every block it visits in a byte-per-block "bytemap" so
// that any block reachable from more than one place, or not reachable at
// all, shows up as a Finding rather than a silent inconsistency.
package fsck

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/vorteil-labs/sfs/internal/elog"
	"github.com/vorteil-labs/sfs/internal/mmap"
	"github.com/vorteil-labs/sfs/pkg/sfs"
)

// code is the bytemap tag recorded for each block as it's visited.
type code byte

const (
	codeUnvisited code = iota
	codeSuperblock
	codeFreelist
	codeFile
	codeDir
	codeCorrupt // claimed a second time; a header tag that doesn't match its list is reported but keeps the list's code
)

func (c code) String() string {
	switch c {
	case codeUnvisited:
		return "unvisited"
	case codeSuperblock:
		return "superblock"
	case codeFreelist:
		return "freelist"
	case codeFile:
		return "file"
	case codeDir:
		return "directory"
	case codeCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Severity classifies a Finding.
type Severity int

const (
	// SeverityWarning is an inconsistency that doesn't prevent the engine
	// from operating. None of the current checks report one; a leaked
	// block no list references is an error (see reconcileUnvisited).
	SeverityWarning Severity = iota
	// SeverityError is an inconsistency that would cause or has caused the
	// engine to behave incorrectly (e.g. a cycle, an out-of-range link, a
	// directory entry whose chain doesn't match its recorded size).
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one reported inconsistency.
type Finding struct {
	Severity Severity    `json:"severity"`
	Block    sfs.BlockID `json:"block,omitempty"` // 0 if not block-specific
	Message  string      `json:"message"`
}

// MarshalJSON renders Severity as its string form ("warning"/"error")
// rather than its underlying int, so sfsck --json output is self
// describing without a lookup table.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Report is the result of a Check run.
type Report struct {
	NBlocks    uint32    `json:"nblocks"`
	Findings   []Finding `json:"findings"`
	FreeBlocks int       `json:"free_blocks"`
	FileBlocks int       `json:"file_blocks"`
	VisitedAll bool      `json:"visited_all"`
}

// Clean reports whether the check found no errors (warnings are still
// allowed in a "clean" report; they don't indicate the engine will
// misbehave).
func (r *Report) Clean() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// checker holds the state of a single Check run.
type checker struct {
	data    []byte
	nblocks uint32
	bytemap []code
	report  Report
	log     elog.View
}

// Check opens path read-only, memory-maps it, and walks its structures.
// It never writes to the image. log may be nil.
func Check(path string, log elog.View) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "fsck: open")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "fsck: stat")
	}
	if info.Size() < sfs.BlockSize || info.Size()%sfs.BlockSize != 0 {
		return &Report{Findings: []Finding{{
			Severity: SeverityError,
			Message:  "image size is not a positive multiple of the block size",
		}}}, nil
	}

	m, err := mmap.OpenReadOnly(f, int(info.Size()))
	if err != nil {
		return nil, errors.Wrap(err, "fsck: mmap")
	}
	defer m.Close()

	nblocks := uint32(info.Size() / sfs.BlockSize)

	c := &checker{
		data:    m.Bytes(),
		nblocks: nblocks,
		bytemap: make([]code, nblocks),
		log:     log,
	}
	c.report.NBlocks = nblocks

	c.run()

	return &c.report, nil
}

func (c *checker) logf(format string, x ...interface{}) {
	if c.log != nil {
		c.log.Infof(format, x...)
	}
}

func (c *checker) warn(block sfs.BlockID, format string, x ...interface{}) {
	c.report.Findings = append(c.report.Findings, Finding{
		Severity: SeverityWarning,
		Block:    block,
		Message:  fmt.Sprintf(format, x...),
	})
}

func (c *checker) fail(block sfs.BlockID, format string, x ...interface{}) {
	c.report.Findings = append(c.report.Findings, Finding{
		Severity: SeverityError,
		Block:    block,
		Message:  fmt.Sprintf(format, x...),
	})
}

// run performs the full traversal: superblock, free list, directory, and
// each live file's chain, then reconciles anything left unvisited.
func (c *checker) run() {
	if c.nblocks < 1 {
		c.fail(0, "volume has no blocks")
		return
	}
	c.bytemap[0] = codeSuperblock

	magic, nblocksField, freelist, nextRootdir, files, ok := c.readSuperblock()
	if !ok {
		return
	}
	if magic != sfs.Magic {
		c.fail(0, "superblock magic mismatch")
		return
	}
	if nblocksField != c.nblocks {
		c.fail(0, "superblock block count %d does not match image size (%d blocks)", nblocksField, c.nblocks)
	}

	c.walkFreelist(freelist)
	c.walkDirChain(nextRootdir)

	for _, e := range files {
		if !e.Live() {
			continue
		}
		c.walkChain(e.NameString(), e.FirstBlock, e.Size)
	}

	c.reconcileUnvisited()
}

// readSuperblock decodes the fields checker needs directly from the mapped
// bytes, independent of the engine's own Volume type (fsck must be able to
// inspect a volume the engine itself would refuse to mount).
func (c *checker) readSuperblock() (magic [8]byte, nblocks uint32, freelist, nextRootdir sfs.BlockID, files [sfs.DirEntriesPerBlock]sfs.DirEntry, ok bool) {
	sb, err := sfs.DecodeSuperblock(c.data[:sfs.BlockSize])
	if err != nil {
		c.fail(0, "superblock is not decodable: %v", err)
		return magic, 0, 0, 0, files, false
	}
	return sb.Magic, sb.NBlocks, sb.Freelist, sb.NextRootdir, sb.Files, true
}

func (c *checker) blockHeader(id sfs.BlockID) (sfs.Header, bool) {
	if id == 0 || id >= sfs.BlockID(c.nblocks) {
		return sfs.Header{}, false
	}
	off := int(id) * sfs.BlockSize
	h, err := sfs.DecodeHeader(c.data[off : off+sfs.HeaderSize])
	if err != nil {
		return sfs.Header{}, false
	}
	return h, true
}

// visit marks id with tag, reporting a Finding if it was already visited
// (a block referenced from two lists at once) or if id is out of range.
func (c *checker) visit(id sfs.BlockID, tag code, context string) bool {
	if id == 0 || id >= sfs.BlockID(c.nblocks) {
		c.fail(id, "%s: block id out of range", context)
		return false
	}
	if c.bytemap[id] != codeUnvisited {
		c.fail(id, "%s: block already claimed as %s", context, c.bytemap[id])
		c.bytemap[id] = codeCorrupt
		return false
	}
	c.bytemap[id] = tag
	return true
}

func (c *checker) walkFreelist(head sfs.BlockID) {
	id := head
	prev := sfs.BlockID(0)
	count := 0
	for id != 0 {
		if !c.visit(id, codeFreelist, "free list") {
			return
		}
		h, ok := c.blockHeader(id)
		if !ok {
			c.fail(id, "free list: block header unreadable")
			return
		}
		if h.Type != sfs.TypeFree {
			c.fail(id, "free list: block header tag is not TypeFree")
		}
		if h.Prev != prev {
			c.fail(id, "free list: block prev link is %d, expected %d", h.Prev, prev)
		}
		count++
		prev = id
		id = h.Next
	}
	c.report.FreeBlocks = count
	c.logf("fsck: free list has %d blocks", count)
}

func (c *checker) walkChain(name string, first sfs.BlockID, size uint32) {
	id := first
	prev := sfs.BlockID(0)
	count := 0
	for id != 0 {
		if !c.visit(id, codeFile, "file "+name) {
			return
		}
		h, ok := c.blockHeader(id)
		if !ok {
			c.fail(id, "file %q: block header unreadable", name)
			return
		}
		if h.Type != sfs.TypeFile && h.Type != sfs.TypeDir {
			c.fail(id, "file %q: block header tag is neither TypeFile nor TypeDir", name)
		}
		if h.Prev != prev {
			c.fail(id, "file %q: block prev link is %d, expected %d", name, h.Prev, prev)
		}
		count++
		prev = id
		id = h.Next
	}

	want := sfs.BlocksForSize(size)
	if count != want {
		c.fail(first, "file %q: recorded size %d implies %d blocks but chain has %d", name, size, want, count)
	}
	c.report.FileBlocks += count
	c.logf("fsck: file %q has %d blocks", name, count)
}

// walkDirChain follows any directory blocks chained off the superblock's
// embedded directory via NextRootdir. This engine never allocates one --
// FileCountLimit never exceeds the embedded directory's capacity -- but
// fsck validates arbitrary images, not only ones this engine produced, so
// a chained directory block (and a corrupt one) must still be caught.
func (c *checker) walkDirChain(next sfs.BlockID) {
	id := next
	prev := sfs.BlockID(0)
	count := 0
	for id != 0 {
		if !c.visit(id, codeDir, "directory chain") {
			return
		}
		h, ok := c.blockHeader(id)
		if !ok {
			c.fail(id, "directory chain: block header unreadable")
			return
		}
		if h.Type != sfs.TypeDir {
			c.fail(id, "directory chain: block header tag is not TypeDir")
		}
		if h.Prev != prev {
			c.fail(id, "directory chain: block prev link is %d, expected %d", h.Prev, prev)
		}
		count++
		prev = id
		id = h.Next
	}
	if count > 0 {
		c.logf("fsck: directory chain has %d blocks", count)
	}
}

// reconcileUnvisited flags any block the traversal never reached. A
// well-formed volume has every non-superblock block on exactly one of the
// free list, the directory chain, or a file chain, so anything still
// codeUnvisited here is capacity the engine has permanently lost track of
// -- it can never be allocated or freed again -- which is an error, not
// merely a warning.
func (c *checker) reconcileUnvisited() {
	for i := 1; i < len(c.bytemap); i++ {
		if c.bytemap[i] == codeUnvisited {
			c.fail(sfs.BlockID(i), "block is reachable from neither the free list, the directory chain, nor any file chain (leaked)")
		}
	}
	c.report.VisitedAll = len(c.report.Findings) == 0
}
