package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"time"
)

// article status bits, persisted
const (
	// article is binary content
	FlagBinary uint8 = 1 << 0
	// multipart post with parts still missing
	FlagBroken uint8 = 1 << 1
	// marked deleted, articles are never removed, only flagged
	FlagDeleted uint8 = 1 << 2
	// body has been downloaded
	FlagDownloaded uint8 = 1 << 3
	// bookmarked by the user
	FlagBookmarked uint8 = 1 << 4
)

// file type classification derived from the subject line
type FileType uint8

const (
	TypeNone FileType = iota
	TypeAudio
	TypeVideo
	TypeImage
	TypeText
	TypeArchive
	TypeParity
	TypeDocument
	TypeOther
)

func (t FileType) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeImage:
		return "image"
	case TypeText:
		return "text"
	case TypeArchive:
		return "archive"
	case TypeParity:
		return "parity"
	case TypeDocument:
		return "document"
	case TypeOther:
		return "other"
	}
	return "none"
}

const (
	// corruption check at the end of every serialized record
	recordTrailer = 0xc0febabe

	// variable string caps, longer values are truncated on parse
	MaxSubjectLen = 255
	MaxAuthorLen  = 127

	// fixed field bytes, see Marshal
	fixedSize = 1 + 1 + 4 + 4 + 4 + 2 + 2 + 8 + 4
	// largest possible serialized record
	maxRecordSize = fixedSize + 2 + MaxSubjectLen + 2 + MaxAuthorLen + 4
)

var ErrRecordCorrupt = errors.New("article record corrupt")

// one usenet posting's metadata
// hash and partno are derived from the subject and never persisted
type Article struct {
	Bits       uint8
	Type       FileType
	Subject    string
	Author     string
	Index      uint32
	Bytes      uint32
	IDBKey     uint32
	PartsAvail uint16
	PartsTotal uint16
	Number     uint64
	Pubdate    uint32

	hash   uint32
	partno uint16
}

func (a *Article) Is(flag uint8) bool {
	return a.Bits&flag != 0
}

func (a *Article) Set(flag uint8, on bool) {
	if on {
		a.Bits |= flag
	} else {
		a.Bits &^= flag
	}
}

func (a *Article) HasParts() bool {
	return a.PartsTotal != 0
}

// part number parsed out of the subject, 0 when not a multipart post
// derived lazily so records loaded back off disk still answer
func (a *Article) PartNo() uint16 {
	if a.partno == 0 && a.PartsTotal != 0 {
		if no, _, ok := findPart(a.Subject); ok {
			a.partno = no
		}
	}
	return a.partno
}

// stable hash of the subject
// digits inside a parenthesized (nn/mm) span are excluded so all parts
// of the same multipart post collide intentionally
func (a *Article) Hash() uint32 {
	if a.hash != 0 {
		return a.hash
	}
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	s := a.Subject
	i := 0
	for i < len(s) {
		if s[i] == '(' {
			if n := partSpan(s[i:]); n != 0 {
				i += n
				continue
			}
		}
		h ^= uint32(s[i])
		h *= prime32
		i++
	}
	if h == 0 {
		h = offset32
	}
	a.hash = h
	return h
}

// compare subjects for multipart equivalence
// exact length and char compare, except digits wildcard match inside
// parenthesized (nn/mm) spans so "foo (1/10)" matches "foo (2/10)"
func (a *Article) IsMatch(other *Article) bool {
	x, y := a.Subject, other.Subject
	if len(x) != len(y) {
		return false
	}
	for i := 0; i < len(x); i++ {
		if x[i] == y[i] {
			continue
		}
		if isDigit(x[i]) && isDigit(y[i]) &&
			insidePartSpan(x, i) && insidePartSpan(y, i) {
			continue
		}
		return false
	}
	return true
}

// merge a later part of the same multipart post into this article
// byte sizes accumulate, available parts increment and the broken flag
// is recomputed
// a duplicate part never pushes the count past the declared total
func (a *Article) Combine(other *Article) {
	a.Bytes += other.Bytes
	if a.PartsTotal == 0 {
		a.PartsAvail++
		return
	}
	if a.PartsAvail < a.PartsTotal {
		a.PartsAvail++
	}
	a.Set(FlagBroken, a.PartsAvail != a.PartsTotal)
}

// serialized record length
// fixed fields plus a 2 byte length prefix and bytes per string plus
// the magic trailer
func (a *Article) SerializedSize() int {
	return fixedSize + 2 + len(a.Subject) + 2 + len(a.Author) + 4
}

func (a *Article) Marshal() []byte {
	buf := make([]byte, 0, a.SerializedSize())
	buf = append(buf, a.Bits, uint8(a.Type))
	buf = binary.LittleEndian.AppendUint32(buf, a.Index)
	buf = binary.LittleEndian.AppendUint32(buf, a.Bytes)
	buf = binary.LittleEndian.AppendUint32(buf, a.IDBKey)
	buf = binary.LittleEndian.AppendUint16(buf, a.PartsAvail)
	buf = binary.LittleEndian.AppendUint16(buf, a.PartsTotal)
	buf = binary.LittleEndian.AppendUint64(buf, a.Number)
	buf = binary.LittleEndian.AppendUint32(buf, a.Pubdate)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(a.Subject)))
	buf = append(buf, a.Subject...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(a.Author)))
	buf = append(buf, a.Author...)
	buf = binary.LittleEndian.AppendUint32(buf, recordTrailer)
	return buf
}

// decode one record off the front of b
// the record is self describing, returns the bytes consumed
// returns ErrRecordCorrupt on a bad trailer or truncated buffer
func UnmarshalArticle(b []byte) (*Article, int, error) {
	if len(b) < fixedSize+2 {
		return nil, 0, ErrRecordCorrupt
	}
	a := &Article{}
	a.Bits = b[0]
	a.Type = FileType(b[1])
	a.Index = binary.LittleEndian.Uint32(b[2:])
	a.Bytes = binary.LittleEndian.Uint32(b[6:])
	a.IDBKey = binary.LittleEndian.Uint32(b[10:])
	a.PartsAvail = binary.LittleEndian.Uint16(b[14:])
	a.PartsTotal = binary.LittleEndian.Uint16(b[16:])
	a.Number = binary.LittleEndian.Uint64(b[18:])
	a.Pubdate = binary.LittleEndian.Uint32(b[26:])
	off := fixedSize

	slen := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if slen > MaxSubjectLen || len(b) < off+slen+2 {
		return nil, 0, ErrRecordCorrupt
	}
	a.Subject = string(b[off : off+slen])
	off += slen

	alen := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if alen > MaxAuthorLen || len(b) < off+alen+4 {
		return nil, 0, ErrRecordCorrupt
	}
	a.Author = string(b[off : off+alen])
	off += alen

	if binary.LittleEndian.Uint32(b[off:]) != recordTrailer {
		return nil, 0, ErrRecordCorrupt
	}
	off += 4
	return a, off, nil
}

var ErrOverviewMalformed = errors.New("malformed overview line")

// date layouts seen in the wild on overview lines
var overviewDateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"Mon, 2 Jan 06 15:04:05 MST",
}

// build an article from one tab delimited xover line
// fields are number, subject, author, date, message-id, references,
// bytecount, linecount per RFC 3977, extra fields are ignored
func ParseOverview(line []byte) (*Article, error) {
	line = bytes.TrimRight(line, "\r\n")
	fields := strings.Split(string(line), "\t")
	if len(fields) < 7 {
		return nil, ErrOverviewMalformed
	}
	number, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return nil, ErrOverviewMalformed
	}
	a := &Article{
		Number:  number,
		Subject: capString(fields[1], MaxSubjectLen),
		Author:  capString(fields[2], MaxAuthorLen),
	}
	a.Pubdate = parseDate(fields[3])
	if size, err := strconv.ParseUint(strings.TrimSpace(fields[6]), 10, 32); err == nil {
		a.Bytes = uint32(size)
	}
	a.classify()
	return a, nil
}

// parse an nntp date string, normalized to seconds gmt
// returns 0 if the date cannot be understood
func parseDate(s string) uint32 {
	s = strings.TrimSpace(s)
	for _, layout := range overviewDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return uint32(t.UTC().Unix())
		}
	}
	return 0
}

// derive file type, binary flag and multipart counts from the subject
func (a *Article) classify() {
	if no, total, ok := findPart(a.Subject); ok {
		a.partno = no
		a.PartsTotal = total
		a.PartsAvail = 1
		a.Set(FlagBroken, a.PartsAvail != a.PartsTotal)
	}
	a.Type = classifySubject(a.Subject)
	switch a.Type {
	case TypeAudio, TypeVideo, TypeImage, TypeArchive, TypeParity:
		a.Set(FlagBinary, true)
	default:
		if a.HasParts() || strings.Contains(a.Subject, "yEnc") {
			a.Set(FlagBinary, true)
			if a.Type == TypeNone {
				a.Type = TypeOther
			}
		}
	}
}

var fileTypes = []struct {
	kind FileType
	exts []string
}{
	{TypeParity, []string{".par2", ".par"}},
	{TypeAudio, []string{".mp3", ".mp2", ".flac", ".ogg", ".wav", ".m4a", ".aac"}},
	{TypeVideo, []string{".avi", ".mkv", ".mp4", ".mpg", ".mpeg", ".wmv", ".mov", ".webm", ".ts"}},
	{TypeImage, []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}},
	{TypeArchive, []string{".zip", ".rar", ".7z", ".gz", ".tar"}},
	{TypeDocument, []string{".pdf", ".doc", ".docx", ".epub", ".mobi"}},
	{TypeText, []string{".txt", ".nfo", ".nzb", ".sfv"}},
}

func classifySubject(subject string) FileType {
	s := strings.ToLower(subject)
	for _, ft := range fileTypes {
		for _, ext := range ft.exts {
			if i := strings.Index(s, ext); i != -1 {
				// extension must end the token
				end := i + len(ext)
				if end == len(s) || !isAlnum(s[end]) {
					return ft.kind
				}
			}
		}
	}
	return TypeNone
}

// find the last (nn/mm) span in the subject
func findPart(s string) (no, total uint16, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '(' {
			continue
		}
		n := partSpan(s[i:])
		if n == 0 {
			continue
		}
		span := s[i+1 : i+n-1]
		slash := strings.IndexByte(span, '/')
		a, _ := strconv.ParseUint(span[:slash], 10, 16)
		b, _ := strconv.ParseUint(span[slash+1:], 10, 16)
		return uint16(a), uint16(b), true
	}
	return 0, 0, false
}

// length of a "(nn/mm)" span at the start of s, 0 if s does not begin
// with one
func partSpan(s string) int {
	if len(s) == 0 || s[0] != '(' {
		return 0
	}
	i := 1
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start || i >= len(s) || s[i] != '/' {
		return 0
	}
	i++
	start = i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start || i >= len(s) || s[i] != ')' {
		return 0
	}
	return i + 1
}

// true when position i falls inside a (nn/mm) span
func insidePartSpan(s string, i int) bool {
	j := i
	for j >= 0 && (isDigit(s[j]) || s[j] == '/') {
		j--
	}
	if j < 0 || s[j] != '(' {
		return false
	}
	return partSpan(s[j:]) != 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func capString(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
