package nntp

// the kind of payload a completed command produced
type ContentType int

const (
	TypeNone ContentType = iota
	// raw group response line, count low high name
	TypeGroupInfo
	// article body block
	TypeArticle
	// xover overview data, one tab delimited line per article
	TypeOverview
	// newsgroup listing
	TypeListing
)

func (t ContentType) String() string {
	switch t {
	case TypeGroupInfo:
		return "groupinfo"
	case TypeArticle:
		return "article"
	case TypeOverview:
		return "overview"
	case TypeListing:
		return "listing"
	}
	return "none"
}

// per command completion status
// command level failures are recorded here, never thrown
type Status int

const (
	StatusNone Status = iota
	StatusSuccess
	// content is not available on this server
	StatusUnavailable
	// content was taken down
	StatusDmca
	// the response could not be understood
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnavailable:
		return "unavailable"
	case StatusDmca:
		return "dmca"
	case StatusError:
		return "error"
	}
	return "none"
}

// result of one completed nntp command
// the originating cmdlist owns the buffer, a connection only fills it in
type Buffer struct {
	Type    ContentType
	Status  Status
	Content []byte
}

func (b *Buffer) Empty() bool {
	return b.Status == StatusNone
}
