package nntp

import (
	"fmt"
	"strconv"
	"strings"

	gnntp "github.com/dustin/go-nntp"
)

// parse a groupinfo buffer's raw response line
// "211 count low high name" per RFC 3977
func ParseGroupInfo(b *Buffer) (*gnntp.Group, error) {
	if b.Type != TypeGroupInfo || b.Status != StatusSuccess {
		return nil, fmt.Errorf("not a group response: %s/%s", b.Type, b.Status)
	}
	parts := strings.Fields(string(b.Content))
	if len(parts) < 5 {
		return nil, ErrProtocol
	}
	count, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrProtocol
	}
	low, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrProtocol
	}
	high, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, ErrProtocol
	}
	return &gnntp.Group{
		Name:  parts[4],
		Count: count,
		Low:   low,
		High:  high,
	}, nil
}

// parse a LIST block, one "name high low status" line per group
// malformed lines are skipped, commercial servers carry junk entries
func ParseListing(b *Buffer) []*gnntp.Group {
	var groups []*gnntp.Group
	for _, line := range strings.Split(string(b.Content), "\r\n") {
		parts := strings.Fields(line)
		if len(parts) < 4 {
			continue
		}
		high, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		low, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		g := &gnntp.Group{
			Name: parts[0],
			High: high,
			Low:  low,
		}
		if len(parts[3]) == 1 {
			g.Posting = gnntp.PostingStatus(parts[3][0])
		}
		if high >= low {
			g.Count = high - low + 1
		}
		groups = append(groups, g)
	}
	return groups
}
