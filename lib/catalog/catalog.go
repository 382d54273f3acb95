package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	// magic cookie at the start of every catalog file
	CatalogMagic = 0xdeadbabe
	// format version, a bump invalidates pre existing files
	CatalogVersion = 5
	// fixed number of offset table entries, power of two
	CatalogSize = 0x20000
	// linear probe stride on hash collision
	probeStride = 3

	// magic(4) version(4) offset(4) size(4) mindate(4) maxdate(4)
	// followed by the full offset table
	headerSize = 24 + 4*CatalogSize
)

// catalog file has a foreign magic or is otherwise unreadable
var ErrCorrupt = errors.New("catalog corrupt")

// catalog file was written by an incompatible version
// reads fail closed, there is no migration
var ErrWrongVersion = errors.New("catalog version mismatch")

// every probe slot is occupied by a non matching article
// the fixed table cannot accept more distinct hash values
var ErrOverflow = errors.New("catalog hash table overflow")

// the addressed table slot is empty
var ErrNoSuchArticle = errors.New("no article in slot")

// durable append mostly storage of article records for one newsgroup
// volume, addressed by a fixed size hash table of offsets into an
// append log, single writer, snapshot readers need no locking
type Catalog struct {
	// called after every append/insert/update with the slot written
	OnWrite func(a *Article, slot uint32)
	// called when the record count changes
	OnInfo func(size uint32)
	// called when Store merges a later part into an existing record,
	// before the combine is applied, used for idlist bookkeeping
	OnCombine func(existing, incoming *Article)

	file  *os.File
	path  string
	table []uint32

	// next append position in the log
	offset uint32
	// number of records
	size uint32
	// publish date range seen across all records
	minDate uint32
	maxDate uint32

	readonly bool
}

// open a catalog file for read/write, creating it if needed
// fails closed on foreign magic or version mismatch
func Open(path string) (*Catalog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		file:  f,
		path:  path,
		table: make([]uint32, CatalogSize),
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		// fresh volume
		c.offset = headerSize
		if err := c.Flush(); err != nil {
			f.Close()
			return nil, err
		}
		log.WithFields(log.Fields{
			"pkg":  "catalog",
			"file": path,
		}).Info("created catalog")
		return c, nil
	}
	if err := c.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) readHeader() error {
	hdr := make([]byte, headerSize)
	if _, err := c.file.ReadAt(hdr, 0); err != nil {
		return ErrCorrupt
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != CatalogMagic {
		return ErrCorrupt
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != CatalogVersion {
		return ErrWrongVersion
	}
	c.offset = binary.LittleEndian.Uint32(hdr[8:])
	c.size = binary.LittleEndian.Uint32(hdr[12:])
	c.minDate = binary.LittleEndian.Uint32(hdr[16:])
	c.maxDate = binary.LittleEndian.Uint32(hdr[20:])
	for i := 0; i < CatalogSize; i++ {
		c.table[i] = binary.LittleEndian.Uint32(hdr[24+4*i:])
	}
	return nil
}

// rewrite the header and offset table in a single write
// log records are durable as soon as written so this is all a flush
// needs to do
func (c *Catalog) Flush() error {
	if c.readonly {
		return nil
	}
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:], CatalogMagic)
	binary.LittleEndian.PutUint32(hdr[4:], CatalogVersion)
	binary.LittleEndian.PutUint32(hdr[8:], c.offset)
	binary.LittleEndian.PutUint32(hdr[12:], c.size)
	binary.LittleEndian.PutUint32(hdr[16:], c.minDate)
	binary.LittleEndian.PutUint32(hdr[20:], c.maxDate)
	for i := 0; i < CatalogSize; i++ {
		binary.LittleEndian.PutUint32(hdr[24+4*i:], c.table[i])
	}
	_, err := c.file.WriteAt(hdr, 0)
	return err
}

func (c *Catalog) Close() error {
	return c.file.Close()
}

func (c *Catalog) Size() uint32 {
	return c.size
}

func (c *Catalog) MinDate() uint32 {
	return c.minDate
}

func (c *Catalog) MaxDate() uint32 {
	return c.maxDate
}

// append a record to the log and record its offset in the next free
// table slot by insertion order, not by hash
// slots already claimed by hash addressed stores are skipped, size
// counts records so a free slot is guaranteed to exist
func (c *Catalog) Append(a *Article) error {
	if c.size >= CatalogSize {
		return ErrOverflow
	}
	slot := c.size
	for c.table[slot] != 0 {
		slot = (slot + 1) % CatalogSize
	}
	return c.insertAt(a, slot)
}

// write a new record and address it from the given table slot
// used by the hash bucket resolution in Store
func (c *Catalog) Insert(a *Article, slot uint32) error {
	if slot >= CatalogSize {
		return fmt.Errorf("catalog: slot %d out of range", slot)
	}
	if c.table[slot] != 0 {
		return fmt.Errorf("catalog: slot %d already occupied", slot)
	}
	return c.insertAt(a, slot)
}

func (c *Catalog) insertAt(a *Article, slot uint32) error {
	rec := a.Marshal()
	if _, err := c.file.WriteAt(rec, int64(c.offset)); err != nil {
		return err
	}
	c.table[slot] = c.offset
	c.offset += uint32(len(rec))
	c.size++
	c.touchDates(a)
	if c.OnWrite != nil {
		c.OnWrite(a, slot)
	}
	if c.OnInfo != nil {
		c.OnInfo(c.size)
	}
	return nil
}

// rewrite the record addressed by the given slot in place
// only valid for updates that keep the variable strings unchanged so
// the serialized size is stable
func (c *Catalog) Update(a *Article, slot uint32) error {
	if slot >= CatalogSize || c.table[slot] == 0 {
		return ErrNoSuchArticle
	}
	rec := a.Marshal()
	if _, err := c.file.WriteAt(rec, int64(c.table[slot])); err != nil {
		return err
	}
	c.touchDates(a)
	if c.OnWrite != nil {
		c.OnWrite(a, slot)
	}
	return nil
}

// store an article through the hash bucket resolution
// probes (attempt*3 + bucket) mod N, an empty slot accepts the new
// article, a subject match combines into the existing record in place,
// N non matching probes overflow the fixed table which is a hard error
func (c *Catalog) Store(a *Article) error {
	bucket := a.Hash() % CatalogSize
	for attempt := uint32(0); attempt < CatalogSize; attempt++ {
		slot := (attempt*probeStride + bucket) % CatalogSize
		if c.table[slot] == 0 {
			return c.Insert(a, slot)
		}
		existing, err := c.Load(slot)
		if err != nil {
			return err
		}
		if existing.IsMatch(a) {
			if c.OnCombine != nil {
				c.OnCombine(existing, a)
			}
			existing.Combine(a)
			return c.Update(existing, slot)
		}
	}
	log.WithFields(log.Fields{
		"pkg":  "catalog",
		"file": c.path,
	}).Error("hash table overflow")
	return ErrOverflow
}

// load the record addressed by the given table slot
func (c *Catalog) Load(slot uint32) (*Article, error) {
	if slot >= CatalogSize || c.table[slot] == 0 {
		return nil, ErrNoSuchArticle
	}
	a, _, err := c.readRecord(c.table[slot])
	return a, err
}

// read the self describing record at an absolute log offset
func (c *Catalog) readRecord(off uint32) (*Article, int, error) {
	buf := make([]byte, maxRecordSize)
	n, err := c.file.ReadAt(buf, int64(off))
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	a, size, err := UnmarshalArticle(buf[:n])
	if err != nil {
		return nil, 0, err
	}
	return a, size, nil
}

func (c *Catalog) touchDates(a *Article) {
	if a.Pubdate == 0 {
		return
	}
	if c.minDate == 0 || a.Pubdate < c.minDate {
		c.minDate = a.Pubdate
	}
	if a.Pubdate > c.maxDate {
		c.maxDate = a.Pubdate
	}
}

// a frozen copy of the header and offset table
// gives a reader a consistent point in time view while the writer
// keeps appending past the recorded offset
type Snapshot struct {
	Offset  uint32
	Size    uint32
	MinDate uint32
	MaxDate uint32
	Table   []uint32
}

// take a snapshot of the current header and table values
func (c *Catalog) TakeSnapshot() *Snapshot {
	table := make([]uint32, CatalogSize)
	copy(table, c.table)
	return &Snapshot{
		Offset:  c.offset,
		Size:    c.size,
		MinDate: c.minDate,
		MaxDate: c.maxDate,
		Table:   table,
	}
}

// open a read only view of the catalog from a snapshot
// offsets beyond the snapshot's recorded offset are never dereferenced
// so no locking against the live writer is needed
func OpenSnapshot(path string, s *Snapshot) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		file:     f,
		path:     path,
		table:    make([]uint32, CatalogSize),
		offset:   s.Offset,
		size:     s.Size,
		minDate:  s.MinDate,
		maxDate:  s.MaxDate,
		readonly: true,
	}
	copy(c.table, s.Table)
	return c, nil
}

// explicit cursor over the record log in physical order
// the next offset is re-derived from the just read record's serialized
// size, never by pointer arithmetic over raw bytes
type Iterator struct {
	c *Catalog
	// offset of the next record to read
	offset uint32
	// serialized length of the current record
	length int
	cur    *Article
	err    error
}

// iterate the log from the first record up to the current end offset
func (c *Catalog) Iterate() *Iterator {
	return &Iterator{c: c, offset: headerSize}
}

// advance to the next record, false at end of log or on error
func (it *Iterator) Next() bool {
	if it.err != nil || it.offset >= it.c.offset {
		return false
	}
	a, size, err := it.c.readRecord(it.offset)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = a
	it.length = size
	it.offset += uint32(size)
	return true
}

func (it *Iterator) Article() *Article {
	return it.cur
}

// log offset of the current article's record
func (it *Iterator) Offset() uint32 {
	return it.offset - uint32(it.length)
}

func (it *Iterator) Err() error {
	return it.err
}
