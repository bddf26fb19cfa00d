package sfs

import "testing"

func TestBlockSizeAccounting(t *testing.T) {
	if HeaderSize+DataSize != BlockSize {
		t.Errorf("header and data sizes don't add up to BlockSize")
	}

	if dirReservedSize+DirEntriesPerBlock*DirEntrySize != DataSize {
		t.Errorf("directory payload doesn't add up to DataSize")
	}
}

func TestBlocksForSize(t *testing.T) {
	cases := []struct {
		size uint32
		want int
	}{
		{0, 1},
		{1, 1},
		{DataSize, 1},
		{DataSize + 1, 2},
		{DataSize * 6, 6},
		{DataSize*6 + 1, 7},
	}

	for _, c := range cases {
		got := blocksForSize(c.size)
		if got != c.want {
			t.Errorf("blocksForSize(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestValidName(t *testing.T) {
	if validName("") {
		t.Errorf("empty name should be invalid")
	}

	ok := "123456789012345678901"
	if len(ok)+1 > NameMax {
		t.Fatalf("test fixture name is too long for NameMax")
	}
	if !validName(ok) {
		t.Errorf("name of length %d should fit in NameMax %d", len(ok), NameMax)
	}

	tooLong := "1234567890123456789012345"
	if validName(tooLong) {
		t.Errorf("name of length %d should not fit in NameMax %d", len(tooLong), NameMax)
	}
}

func TestDirEntryLive(t *testing.T) {
	var e DirEntry
	if e.Live() {
		t.Errorf("zero-value DirEntry should not be live")
	}

	e.FirstBlock = 1
	if !e.Live() {
		t.Errorf("DirEntry with a nonzero FirstBlock should be live")
	}
}

func TestDirEntryNameString(t *testing.T) {
	e := DirEntry{Name: encodeName("hello")}
	if e.NameString() != "hello" {
		t.Errorf("NameString() = %q, want %q", e.NameString(), "hello")
	}
}
