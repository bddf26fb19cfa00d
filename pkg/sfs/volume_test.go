package sfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempImagePath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "image.sfs")
}

func mustFormatMount(t *testing.T, nblocks uint32) *Volume {
	t.Helper()
	path := tempImagePath(t)
	require.NoError(t, Format(path, nblocks, nil))
	v, err := Mount(path, nil)
	require.NoError(t, err)
	return v
}

// listAllNames drains v's directory via the cookie-based List, looping
// until it sees the null cookie again, and returns every name it saw in
// slot order.
func listAllNames(t *testing.T, v *Volume) []string {
	t.Helper()
	var names []string
	buf := make([]byte, NameMax)
	cookie := Cookie(0)
	for {
		next, done, err := v.List(cookie, buf)
		require.NoError(t, err)
		if done {
			assert.Equal(t, Cookie(0), next)
			return names
		}
		end := 0
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		names = append(names, string(buf[:end]))
		cookie = next
	}
}

func TestFormatRejectsTooFewBlocks(t *testing.T) {
	err := Format(tempImagePath(t), 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFormatMountRoundTrip(t *testing.T) {
	path := tempImagePath(t)
	require.NoError(t, Format(path, 64, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 64*BlockSize, info.Size())

	v, err := Mount(path, nil)
	require.NoError(t, err)
	defer Unmount(v)

	assert.Empty(t, listAllNames(t, v))
	blocks, _ := v.FreeSpace()
	assert.EqualValues(t, 63, blocks)
}

func TestMountRejectsBadMagic(t *testing.T) {
	path := tempImagePath(t)
	require.NoError(t, os.WriteFile(path, make([]byte, BlockSize*4), 0644))

	_, err := Mount(path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestOpenCreateWriteReadClose(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	fd, err := v.Open("greeting", true)
	require.NoError(t, err)

	n, err := v.Write(fd, []byte("hello, sfs"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = v.Seek(fd, 0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err = v.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "hello, sfs", string(buf))

	require.NoError(t, v.Close(fd))

	st, err := v.Stat("greeting")
	require.NoError(t, err)
	assert.EqualValues(t, 10, st.Size)
	assert.Equal(t, 1, st.Blocks)
}

func TestOpenWithoutCreateMissingFile(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	_, err := v.Open("nope", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestWriteSpansMultipleBlocks(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	fd, err := v.Open("big", true)
	require.NoError(t, err)

	payload := make([]byte, DataSize*3+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	n, err := v.Write(fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	_, err = v.Seek(fd, 0, io.SeekStart)
	require.NoError(t, err)

	readBack := make([]byte, len(payload))
	total := 0
	for total < len(readBack) {
		n, err := v.Read(fd, readBack[total:])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total += n
	}

	assert.Equal(t, payload, readBack)

	st, err := v.Stat("big")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blocks)
}

func TestWriteIsAllOrNothingOnNoSpace(t *testing.T) {
	// 4 blocks total: 1 superblock, 3 free. Opening "f" claims one of
	// them for the file's first block, leaving 2 free.
	v := mustFormatMount(t, 4)
	defer Unmount(v)

	fd, err := v.Open("f", true)
	require.NoError(t, err)

	freeBefore, _ := v.FreeSpace()
	require.EqualValues(t, 2, freeBefore)

	// This write needs 4 total blocks (3 more than the 1 the file
	// already has), but only 2 are free -- it must fail cleanly rather
	// than grow the chain by the 2 it could allocate before running out.
	n, err := v.Write(fd, make([]byte, DataSize*3+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Zero(t, n)

	freeAfter, _ := v.FreeSpace()
	assert.Equal(t, freeBefore, freeAfter)

	st, err := v.Stat("f")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Blocks)
	assert.EqualValues(t, 0, st.Size)
}

func TestSeekClampsToBounds(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	fd, err := v.Open("f", true)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("abcdef"))
	require.NoError(t, err)

	pos, err := v.Seek(fd, 1000, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)

	pos, err = v.Seek(fd, -1000, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pos)

	got, err := v.GetPos(fd)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
}

func TestRemoveFreesBlocksAndBlocksBusyWhileOpen(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	fd, err := v.Open("doomed", true)
	require.NoError(t, err)
	_, err = v.Write(fd, make([]byte, DataSize*2))
	require.NoError(t, err)

	err = v.Remove("doomed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)

	before, _ := v.FreeSpace()
	require.NoError(t, v.Close(fd))
	require.NoError(t, v.Remove("doomed"))
	after, _ := v.FreeSpace()

	assert.Greater(t, after, before)
	assert.Empty(t, listAllNames(t, v))
}

func TestRemoveMissingIsNoEntry(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	err := v.Remove("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRemoveRejectsOverlongName(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	err := v.Remove(string(make([]byte, NameMax)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestRenameReplacesTargetAndRejectsWhileBusy(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	a, err := v.Open("a", true)
	require.NoError(t, err)
	_, err = v.Write(a, []byte("aaa"))
	require.NoError(t, err)
	require.NoError(t, v.Close(a))

	b, err := v.Open("b", true)
	require.NoError(t, err)
	_, err = v.Write(b, []byte("bbbbb"))
	require.NoError(t, err)

	err = v.Rename("a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, v.Close(b))
	require.NoError(t, v.Rename("a", "b"))

	st, err := v.Stat("b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Size)

	_, err = v.Stat("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestDirectoryFullReturnsNoSpace(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	for i := 0; i < FileCountLimit; i++ {
		_, err := v.Open(string(rune('a'+i)), true)
		require.NoError(t, err)
	}

	_, err := v.Open("overflow", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestListCookieIteratesEveryEntryThenResets(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	want := make([]string, FileCountLimit)
	for i := 0; i < FileCountLimit; i++ {
		name := string(rune('a' + i))
		_, err := v.Open(name, true)
		require.NoError(t, err)
		want[i] = name
	}

	buf := make([]byte, NameMax)
	cookie := Cookie(0)
	var got []string
	for i := 0; i < FileCountLimit; i++ {
		next, done, err := v.List(cookie, buf)
		require.NoError(t, err)
		require.False(t, done)

		end := 0
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		got = append(got, string(buf[:end]))
		cookie = next
	}
	assert.Equal(t, want, got)

	next, done, err := v.List(cookie, buf)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, Cookie(0), next)
}

func TestListRejectsZeroCapAndTooSmallBuffer(t *testing.T) {
	v := mustFormatMount(t, 64)
	defer Unmount(v)

	_, err := v.Open("abc", true)
	require.NoError(t, err)

	_, _, err = v.List(0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = v.List(0, make([]byte, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestUnmountBusyWhileDescriptorOpen(t *testing.T) {
	path := tempImagePath(t)
	require.NoError(t, Format(path, 16, nil))
	v, err := Mount(path, nil)
	require.NoError(t, err)

	fd, err := v.Open("held", true)
	require.NoError(t, err)

	err = Unmount(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, v.Close(fd))
	require.NoError(t, Unmount(v))
}
