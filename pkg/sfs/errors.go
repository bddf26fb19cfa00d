package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the cause of an Error, independent of any particular
// operation. Callers that need to branch on cause should compare against
// the sentinel Err* values with errors.Is, not against Kind directly.
type Kind int

const (
	// KindNotMounted names the condition of an operation on a volume that
	// is not mounted. No operation in this package returns it: Volume
	// methods do not check whether Unmount has already been called.
	KindNotMounted Kind = iota
	// KindAlreadyMounted names the condition of mounting a volume that is
	// already mounted. No operation in this package returns it: Mount keeps
	// no record of other mounts and does not detect a second one.
	KindAlreadyMounted
	// KindInvalidArgument is returned for a caller-supplied argument that
	// fails validation: a Format block count below 2, an unknown Seek
	// whence, or an empty List buffer. Seek clamps out-of-range offsets
	// rather than rejecting them.
	KindInvalidArgument
	// KindNameTooLong is returned when a name is empty, contains only NUL
	// bytes, or (with its NUL terminator) does not fit in NameMax bytes.
	KindNameTooLong
	// KindTooLarge is returned when a write would grow a file past
	// MaxFileSize.
	KindTooLarge
	// KindNoSpace is returned when the free list is exhausted.
	KindNoSpace
	// KindTooManyOpenFiles is returned when the descriptor table is full.
	KindTooManyOpenFiles
	// KindBadDescriptor is returned when an operation is given a
	// descriptor that is not currently open.
	KindBadDescriptor
	// KindNoEntry is returned when a named file does not exist in the
	// directory.
	KindNoEntry
	// KindExists names a collision with a live name. No operation in this
	// package returns it: Open with create set opens an existing file of
	// the same name, and Rename replaces an existing target.
	KindExists
	// KindBusy is returned when an operation cannot proceed because the
	// target is referenced by an open descriptor.
	KindBusy
	// KindCorrupt is returned when the engine observes an on-disk
	// structure it cannot reconcile with its invariants (not to be
	// confused with fsck.Finding, which fsck uses instead of this kind
	// for expected format-level corruption it's designed to report).
	KindCorrupt
	// KindIO is returned when a host I/O operation (mmap, msync, stat)
	// fails.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotMounted:
		return "not mounted"
	case KindAlreadyMounted:
		return "already mounted"
	case KindInvalidArgument:
		return "invalid argument"
	case KindNameTooLong:
		return "name too long"
	case KindTooLarge:
		return "file too large"
	case KindNoSpace:
		return "no space left on volume"
	case KindTooManyOpenFiles:
		return "too many open files"
	case KindBadDescriptor:
		return "bad descriptor"
	case KindNoEntry:
		return "no such file"
	case KindExists:
		return "file exists"
	case KindBusy:
		return "resource busy"
	case KindCorrupt:
		return "corrupt volume"
	case KindIO:
		return "i/o error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every exported operation in
// this package. It carries a Kind for programmatic branching and, for
// errors that originate from a failing host call, an underlying cause with
// a stack trace attached by github.com/pkg/errors.
type Error struct {
	Kind Kind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name != "" {
		if e.Err != nil {
			return fmt.Sprintf("sfs: %s %q: %s: %v", e.Op, e.Name, e.Kind, e.Err)
		}
		return fmt.Sprintf("sfs: %s %q: %s", e.Op, e.Name, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("sfs: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sfs: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause, if any, so errors.Is/errors.As see
// through to it.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind, so callers can
// write errors.Is(err, sfs.ErrBusy) without reaching into e.Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Op == "" && t.Name == ""
}

// newErr builds an *Error for a failed operation. cause may be nil.
func newErr(op string, name string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: cause}
}

// wrapIO builds a KindIO *Error around a host I/O failure, attaching a
// stack trace via github.com/pkg/errors so diagnostics survive up through
// whatever logging the caller wires in.
func wrapIO(op string, name string, cause error) *Error {
	return newErr(op, name, KindIO, errors.WithStack(cause))
}

// Sentinel errors for use with errors.Is, one per Kind. None of these carry
// an Op, Name, or wrapped cause -- compare only the Kind.
var (
	ErrNotMounted      = &Error{Kind: KindNotMounted}
	ErrAlreadyMounted  = &Error{Kind: KindAlreadyMounted}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNameTooLong     = &Error{Kind: KindNameTooLong}
	ErrTooLarge        = &Error{Kind: KindTooLarge}
	ErrNoSpace         = &Error{Kind: KindNoSpace}
	ErrTooManyOpenFiles = &Error{Kind: KindTooManyOpenFiles}
	ErrBadDescriptor   = &Error{Kind: KindBadDescriptor}
	ErrNoEntry         = &Error{Kind: KindNoEntry}
	ErrExists          = &Error{Kind: KindExists}
	ErrBusy            = &Error{Kind: KindBusy}
	ErrCorrupt         = &Error{Kind: KindCorrupt}
	ErrIO              = &Error{Kind: KindIO}
)
