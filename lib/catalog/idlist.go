package catalog

import (
	"encoding/binary"
	"errors"
	"os"
)

const (
	// the legacy format had no magic or version at all, this
	// implementation versions the header and fails closed like the
	// catalog does
	idlistMagic   = 0x1d11d1ab
	idlistVersion = 1
	// magic(4) version(4) count(4)
	idlistHeader = 12
)

var ErrIDListCorrupt = errors.New("idlist corrupt")

// flat array of signed 16 bit deltas, one slot per (multipart post,
// part number) pair, used to reconstruct per part article numbers
// relative to a stored base number, indexed by idbkey + partno
type IDList struct {
	file   *os.File
	values []int16
}

// open an idlist file, creating it if needed
func OpenIDList(path string) (*IDList, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	l := &IDList{file: f}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		return l, nil
	}
	hdr := make([]byte, idlistHeader)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		f.Close()
		return nil, ErrIDListCorrupt
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != idlistMagic {
		f.Close()
		return nil, ErrIDListCorrupt
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != idlistVersion {
		f.Close()
		return nil, ErrIDListCorrupt
	}
	count := binary.LittleEndian.Uint32(hdr[8:])
	data := make([]byte, 2*count)
	if _, err := f.ReadAt(data, idlistHeader); err != nil {
		f.Close()
		return nil, ErrIDListCorrupt
	}
	l.values = make([]int16, count)
	for i := range l.values {
		l.values[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return l, nil
}

func (l *IDList) Close() error {
	return l.file.Close()
}

func (l *IDList) Size() int {
	return len(l.values)
}

// grow the array to hold at least n slots, new slots are zero
func (l *IDList) Resize(n int) {
	if n <= len(l.values) {
		return
	}
	grown := make([]int16, n)
	copy(grown, l.values)
	l.values = grown
}

func (l *IDList) Set(i int, v int16) {
	if i >= len(l.values) {
		l.Resize(i + 1)
	}
	l.values[i] = v
}

func (l *IDList) Get(i int) int16 {
	if i >= len(l.values) {
		return 0
	}
	return l.values[i]
}

// rewrite the whole file, header plus values
func (l *IDList) Flush() error {
	buf := make([]byte, idlistHeader+2*len(l.values))
	binary.LittleEndian.PutUint32(buf[0:], idlistMagic)
	binary.LittleEndian.PutUint32(buf[4:], idlistVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(l.values)))
	for i, v := range l.values {
		binary.LittleEndian.PutUint16(buf[idlistHeader+2*i:], uint16(v))
	}
	_, err := l.file.WriteAt(buf, 0)
	return err
}
