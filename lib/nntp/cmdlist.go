package nntp

import (
	"sync/atomic"
)

// the kind of work a cmdlist carries
type CmdType int

const (
	// newsgroup listing
	CmdListing CmdType = iota
	// article bodies
	CmdBody
	// header overview ranges
	CmdXOver
	// single group information query
	CmdGroupInfo
)

func (t CmdType) String() string {
	switch t {
	case CmdListing:
		return "listing"
	case CmdBody:
		return "body"
	case CmdXOver:
		return "xover"
	case CmdGroupInfo:
		return "groupinfo"
	}
	return "unknown"
}

// a unit of protocol work routed whole to one connection
// spans one or more logical commands, the owning task reads the result
// buffers back out of the same object after completion
type CmdList struct {
	// what kind of work this is
	Kind CmdType
	// candidate newsgroups tried in order during configuration
	Groups []string
	// textual sub commands, article ids or xover ranges
	Commands []string
	// per sub command result buffers, parallel to Commands
	Buffers []*Buffer

	// selected candidate group, -1 until configured
	configured int

	cancelled atomic.Bool
	failed    atomic.Bool
}

// cmdlist fetching article bodies from the first group that has them
func NewBodyList(groups []string, ids []string) *CmdList {
	return newCmdList(CmdBody, groups, ids)
}

// cmdlist fetching overview ranges, each range "first-last"
func NewXOverList(group string, ranges []string) *CmdList {
	return newCmdList(CmdXOver, []string{group}, ranges)
}

// cmdlist querying group information
func NewGroupInfoList(group string) *CmdList {
	return newCmdList(CmdGroupInfo, []string{group}, []string{group})
}

// cmdlist fetching the newsgroup listing
func NewListingList() *CmdList {
	return newCmdList(CmdListing, nil, []string{"LIST"})
}

func newCmdList(kind CmdType, groups, cmds []string) *CmdList {
	c := &CmdList{
		Kind:       kind,
		Groups:     groups,
		Commands:   cmds,
		Buffers:    make([]*Buffer, len(cmds)),
		configured: -1,
	}
	for i := range c.Buffers {
		c.Buffers[i] = &Buffer{}
	}
	return c
}

// body and xover commands only work inside a selected group
func (c *CmdList) NeedsToConfigure() bool {
	return c.Kind == CmdBody || c.Kind == CmdXOver
}

// submit the i'th candidate group selection
// returns false once the candidates are exhausted, the cmdlist is then
// marked failed and no data commands may be submitted
func (c *CmdList) SubmitConfigureCommand(i int, s *Session) bool {
	if i >= len(c.Groups) {
		c.failed.Store(true)
		return false
	}
	s.ChangeGroup(c.Groups[i])
	return true
}

// receive the buffer for the i'th configure attempt
// returns true when the group was selected and configuration stops
func (c *CmdList) ReceiveConfigureBuffer(i int, b *Buffer) bool {
	if b.Status == StatusSuccess {
		c.configured = i
		return true
	}
	return false
}

// submit the data commands through the session
// sub items whose buffer is already successful are skipped so a partial
// failure can be resubmitted without refetching completed items, the
// failed buffers are cleared so the retried results have slots to land
// in
func (c *CmdList) SubmitDataCommands(s *Session) {
	switch c.Kind {
	case CmdListing:
		s.RetrieveList()
	case CmdGroupInfo:
		s.ChangeGroup(c.Groups[0])
	case CmdBody:
		for i, id := range c.Commands {
			if c.Buffers[i].Status == StatusSuccess {
				continue
			}
			*c.Buffers[i] = Buffer{}
			s.RetrieveArticle(id)
		}
	case CmdXOver:
		for i, r := range c.Commands {
			if c.Buffers[i].Status == StatusSuccess {
				continue
			}
			*c.Buffers[i] = Buffer{}
			var first, last uint64
			parseRange(r, &first, &last)
			s.RetrieveHeaders(first, last)
		}
	}
}

// store a completed data buffer into the first still empty slot
// input order is preserved so a retried subset lands in the right
// places without reshuffling already successful results
func (c *CmdList) ReceiveDataBuffer(b *Buffer) {
	for i := range c.Buffers {
		if c.Buffers[i].Empty() {
			*c.Buffers[i] = *b
			return
		}
	}
}

// true when every sub command has a non empty result buffer
func (c *CmdList) IsDone() bool {
	for _, b := range c.Buffers {
		if b.Empty() {
			return false
		}
	}
	return true
}

// false when configuration exhausted every candidate group
func (c *CmdList) IsGood() bool {
	return !c.failed.Load()
}

// request abandonment, checked by the owning connection between
// protocol steps, in flight commands are not rolled back
func (c *CmdList) Cancel() {
	c.cancelled.Store(true)
}

func (c *CmdList) IsCancelled() bool {
	return c.cancelled.Load()
}

// index of the selected candidate group, -1 if not configured
func (c *CmdList) ConfiguredGroup() int {
	return c.configured
}

func parseRange(s string, first, last *uint64) {
	var lo, hi uint64
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		lo = lo*10 + uint64(s[i]-'0')
		i++
	}
	if i < len(s) && s[i] == '-' {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		hi = hi*10 + uint64(s[i]-'0')
		i++
	}
	if hi == 0 {
		hi = lo
	}
	*first = lo
	*last = hi
}
