package sfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Cookie is an opaque position in a directory scan, handed back by List
// and fed into the next call to resume where the last one left off. The
// null Cookie (the zero value) starts a scan from the directory's first
// slot; List resets the cookie to null once a scan reaches the end, so a
// caller can loop "until it sees null again" without tracking anything
// else. A cookie is a slot index, not a live-entry count, which is what
// makes it cheap: advancing from it is a scan, not a rebuild. Mutating the
// directory (Open with create, Remove, Rename) while a cookie from an
// earlier call is still in flight invalidates it -- the caller is
// responsible for not doing that, same as any other non-reentrant cursor.
type Cookie uint32

// List advances from cookie's slot to the next live directory entry. On
// finding one it copies the entry's name, including its NUL terminator,
// into out, and returns the cookie to resume from on the next call along
// with done=false. Once the scan reaches the end of the directory with no
// more live entries, it returns the null cookie and done=true, out
// untouched. Returns ErrInvalidArgument if out is empty, or
// ErrNameTooLong if the next live name (with its NUL) doesn't fit in out
// -- in both cases the cookie is unchanged so the caller can retry with a
// bigger buffer without losing its place.
func (v *Volume) List(cookie Cookie, out []byte) (next Cookie, done bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(out) == 0 {
		return cookie, false, newErr("list", "", KindInvalidArgument, nil)
	}

	for i := int(cookie); i < len(v.super.Files); i++ {
		e := &v.super.Files[i]
		if !e.Live() {
			continue
		}
		name := e.NameString()
		if len(name)+1 > len(out) {
			return cookie, false, newErr("list", name, KindNameTooLong, nil)
		}
		n := copy(out, name)
		out[n] = 0
		return Cookie(i + 1), false, nil
	}

	return 0, true, nil
}
