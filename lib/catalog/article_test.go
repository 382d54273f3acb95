package catalog

import (
	"testing"
)

func TestParseOverview(t *testing.T) {
	line := []byte("1234\tholiday.mkv (01/20)\tjoe <joe@example.com>\t" +
		"Mon, 2 Jan 2006 15:04:05 -0700\t<abc@news>\t\t562340\t800\r\n")
	a, err := ParseOverview(line)
	if err != nil {
		t.Fatal(err)
	}
	if a.Number != 1234 {
		t.Errorf("number %d", a.Number)
	}
	if a.Subject != "holiday.mkv (01/20)" {
		t.Errorf("subject %q", a.Subject)
	}
	if a.Author != "joe <joe@example.com>" {
		t.Errorf("author %q", a.Author)
	}
	if a.Bytes != 562340 {
		t.Errorf("bytes %d", a.Bytes)
	}
	if a.Pubdate == 0 {
		t.Error("pubdate not parsed")
	}
	if a.Type != TypeVideo {
		t.Errorf("type %s", a.Type)
	}
	if !a.Is(FlagBinary) {
		t.Error("binary flag not set")
	}
	if a.PartsTotal != 20 || a.PartsAvail != 1 || a.PartNo() != 1 {
		t.Errorf("parts %d/%d no %d", a.PartsAvail, a.PartsTotal, a.PartNo())
	}
	if !a.Is(FlagBroken) {
		t.Error("incomplete multipart must be broken")
	}
}

func TestParseOverviewMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"1\tonly\tfour\tfields",
		"notanumber\ts\ta\td\t<m>\t\t100\t1",
	} {
		if _, err := ParseOverview([]byte(line)); err == nil {
			t.Errorf("accepted %q", line)
		}
	}
}

func TestHashPartsCollide(t *testing.T) {
	a := &Article{Subject: "holiday.mkv (1/10) yEnc"}
	b := &Article{Subject: "holiday.mkv (2/10) yEnc"}
	c := &Article{Subject: "weather.mkv (1/10) yEnc"}
	if a.Hash() != b.Hash() {
		t.Error("parts of the same post must hash together")
	}
	if a.Hash() == c.Hash() {
		t.Error("different posts must not hash together")
	}
}

func TestIsMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"holiday.mkv (1/10)", "holiday.mkv (2/10)", true},
		{"holiday.mkv (1/10)", "holiday.mkv (1/10)", true},
		{"holiday.mkv (1/10)", "holiday.mkv (1/99)", true},
		{"holiday.mkv (1/10)", "weekend.mkv (1/10)", false},
		{"holiday.mkv (1/10)", "holiday.mkv (10/10)", false},
		// digits outside a part span are not wildcards
		{"video1.mkv", "video2.mkv", false},
		{"same thing", "same thing", true},
	}
	for _, c := range cases {
		a := &Article{Subject: c.a}
		b := &Article{Subject: c.b}
		if got := a.IsMatch(b); got != c.want {
			t.Errorf("IsMatch(%q, %q) = %v", c.a, c.b, got)
		}
	}
}

func TestCombine(t *testing.T) {
	a, err := ParseOverview([]byte("1\tclip.avi (1/3)\tjoe\tdate\t<1>\t\t100\t1"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Is(FlagBroken) {
		t.Fatal("1 of 3 must be broken")
	}
	a.Combine(&Article{Bytes: 200})
	if a.Bytes != 300 || a.PartsAvail != 2 {
		t.Errorf("after first combine: %d bytes, %d parts", a.Bytes, a.PartsAvail)
	}
	if !a.Is(FlagBroken) {
		t.Error("2 of 3 must still be broken")
	}
	a.Combine(&Article{Bytes: 50})
	if a.PartsAvail != 3 {
		t.Errorf("parts %d", a.PartsAvail)
	}
	if a.Is(FlagBroken) {
		t.Error("3 of 3 must not be broken")
	}
}

// overlapping overview ranges feed the same part twice, the count must
// never exceed the declared total
func TestCombineDuplicatePart(t *testing.T) {
	a, err := ParseOverview([]byte("1\tclip.avi (1/2)\tjoe\tdate\t<1>\t\t100\t1"))
	if err != nil {
		t.Fatal(err)
	}
	a.Combine(&Article{Bytes: 100})
	a.Combine(&Article{Bytes: 100})
	a.Combine(&Article{Bytes: 100})
	if a.PartsAvail != 2 || a.PartsTotal != 2 {
		t.Errorf("parts %d/%d", a.PartsAvail, a.PartsTotal)
	}
	if a.Is(FlagBroken) {
		t.Error("complete post must not be broken")
	}
	// byte sizes still accumulate
	if a.Bytes != 400 {
		t.Errorf("bytes %d", a.Bytes)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	a := &Article{
		Bits:       FlagBinary | FlagDownloaded,
		Type:       TypeArchive,
		Subject:    "backup.rar (3/7) yEnc",
		Author:     "bob <bob@example.com>",
		Index:      42,
		Bytes:      123456,
		IDBKey:     7,
		PartsAvail: 3,
		PartsTotal: 7,
		Number:     987654321,
		Pubdate:    1136239445,
	}
	rec := a.Marshal()
	if len(rec) != a.SerializedSize() {
		t.Fatalf("marshaled %d bytes, want %d", len(rec), a.SerializedSize())
	}
	b, n, err := UnmarshalArticle(rec)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(rec) {
		t.Errorf("consumed %d of %d", n, len(rec))
	}
	if *b != (Article{
		Bits: a.Bits, Type: a.Type, Subject: a.Subject, Author: a.Author,
		Index: a.Index, Bytes: a.Bytes, IDBKey: a.IDBKey,
		PartsAvail: a.PartsAvail, PartsTotal: a.PartsTotal,
		Number: a.Number, Pubdate: a.Pubdate,
	}) {
		t.Errorf("round trip mismatch: %+v", b)
	}
	// part number is derivable again after a round trip
	if b.PartNo() != 3 {
		t.Errorf("partno %d", b.PartNo())
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	a := &Article{Subject: "s", Author: "a", Number: 1}
	rec := a.Marshal()
	// stomp the trailer
	rec[len(rec)-1] ^= 0xff
	if _, _, err := UnmarshalArticle(rec); err != ErrRecordCorrupt {
		t.Errorf("bad trailer: %v", err)
	}
	// truncated buffer
	if _, _, err := UnmarshalArticle(rec[:10]); err != ErrRecordCorrupt {
		t.Errorf("truncated: %v", err)
	}
}

func TestClassifySubject(t *testing.T) {
	cases := []struct {
		subject string
		want    FileType
	}{
		{"music.mp3", TypeAudio},
		{"show.s01e01.mkv [1/5]", TypeVideo},
		{"repair.par2", TypeParity},
		{"photos.zip", TypeArchive},
		{"readme.txt", TypeText},
		{"manual.pdf", TypeDocument},
		{"mp3 collection discussion", TypeNone},
		{"something.mp3gain", TypeNone},
	}
	for _, c := range cases {
		if got := classifySubject(c.subject); got != c.want {
			t.Errorf("classify(%q) = %s, want %s", c.subject, got, c.want)
		}
	}
}

func TestYencClassifiedBinary(t *testing.T) {
	a, err := ParseOverview([]byte("1\tmystery stuff yEnc (1/4)\tjoe\tdate\t<1>\t\t100\t1"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Is(FlagBinary) || a.Type != TypeOther {
		t.Errorf("bits %x type %s", a.Bits, a.Type)
	}
}
