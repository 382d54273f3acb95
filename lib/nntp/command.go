package nntp

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// the closed set of commands the session knows how to speak
// the set of nntp commands is fixed so a tagged variant switched by
// kind replaces the usual virtual command object hierarchy
type CommandKind int

const (
	cmdWelcome CommandKind = iota
	cmdCapabilities
	cmdModeReader
	cmdAuthUser
	cmdAuthPass
	cmdGroup
	cmdBody
	cmdXOver
	cmdXZVer
	cmdList
	cmdPing
	cmdQuit
)

// one queued wire command
// line is the exact request text without the trailing crlf, the
// greeting pseudo command has no line and is never sent
type command struct {
	kind     CommandKind
	line     string
	pipeline bool
}

func welcomeCmd() *command {
	return &command{kind: cmdWelcome}
}

func capabilitiesCmd() *command {
	return &command{kind: cmdCapabilities, line: "CAPABILITIES"}
}

func modeReaderCmd() *command {
	return &command{kind: cmdModeReader, line: "MODE READER"}
}

func authUserCmd(user string) *command {
	return &command{kind: cmdAuthUser, line: "AUTHINFO USER " + user}
}

func authPassCmd(pass string) *command {
	return &command{kind: cmdAuthPass, line: "AUTHINFO PASS " + pass}
}

func groupCmd(name string) *command {
	return &command{kind: cmdGroup, line: "GROUP " + name}
}

func bodyCmd(id string) *command {
	return &command{kind: cmdBody, line: "BODY " + id, pipeline: true}
}

func xoverCmd(first, last uint64) *command {
	return &command{kind: cmdXOver, line: fmt.Sprintf("XOVER %d-%d", first, last), pipeline: true}
}

func xzverCmd(first, last uint64) *command {
	return &command{kind: cmdXZVer, line: fmt.Sprintf("XZVER %d-%d", first, last), pipeline: true}
}

func listCmd() *command {
	return &command{kind: cmdList, line: "LIST"}
}

// protocol level no-op used to detect stale connections
func pingCmd() *command {
	return &command{kind: cmdPing, line: "DATE"}
}

func quitCmd() *command {
	return &command{kind: cmdQuit, line: "QUIT"}
}

// parse the accumulated receive buffer against this command
// returns the number of bytes consumed once the full frame is
// buffered, done is false while more bytes are needed
// needAuth is set when the server demanded authentication in place of
// a normal response, the session reschedules the command in that case
func (c *command) parse(buf []byte, out *Buffer, s *Session) (consumed int, done bool, needAuth bool, err error) {
	n := findResponseLine(buf)
	if n == 0 {
		return
	}
	line := buf[:n]
	code, ok := scanResponseCode(line)
	if !ok {
		err = ErrProtocol
		return
	}

	if code == ERR_AuthRequired && c.kind != cmdAuthUser && c.kind != cmdAuthPass {
		consumed = n
		done = true
		needAuth = true
		return
	}

	switch c.kind {
	case cmdWelcome:
		consumed = n
		done = true
		if code != RPL_PostingAllowed && code != RPL_PostingNotAllowed {
			err = ErrProtocol
		}

	case cmdCapabilities:
		if code == RPL_Capabilities {
			m := findBodyEnd(buf[n:])
			if m == 0 {
				return
			}
			s.parseCaps(buf[n : n+m-3])
			consumed = n + m
		} else {
			// server doesn't do capabilities, ignored
			consumed = n
		}
		s.capsReceived = true
		done = true

	case cmdModeReader:
		consumed = n
		done = true
		if code != RPL_PostingAllowed && code != RPL_PostingNotAllowed {
			log.WithFields(log.Fields{
				"pkg":  "nntp",
				"code": code,
			}).Warn("unexpected response to MODE READER")
		}

	case cmdAuthUser:
		consumed = n
		done = true
		switch code {
		case RPL_AuthAccepted:
			// no password wanted, drop the queued AUTHINFO PASS
			s.dropFrontAuthPass()
			s.authenticated = true
		case RPL_MorePlease:
			// password follows as the next queued command
		case ERR_AuthRejected, ERR_AccessDenied:
			err = ErrAuthRejected
		default:
			err = ErrProtocol
		}

	case cmdAuthPass:
		consumed = n
		done = true
		switch code {
		case RPL_AuthAccepted:
			s.authenticated = true
		case ERR_AuthRejected, ERR_AccessDenied:
			err = ErrAuthRejected
		default:
			err = ErrProtocol
		}

	case cmdGroup:
		consumed = n
		done = true
		out.Type = TypeGroupInfo
		switch code {
		case RPL_Group:
			out.Status = StatusSuccess
			out.Content = trimCRLF(line)
		case ERR_NoSuchGroup:
			out.Status = StatusUnavailable
		default:
			out.Status = StatusError
		}

	case cmdBody:
		out.Type = TypeArticle
		switch code {
		case RPL_Body:
			m := findBodyEnd(buf[n:])
			if m == 0 {
				return
			}
			consumed = n + m
			done = true
			out.Status = StatusSuccess
			out.Content = append([]byte(nil), buf[n:n+m]...)
		case ERR_NoArticleNumber, ERR_NoSuchArticleNumber, ERR_NoSuchArticle:
			consumed = n
			done = true
			out.Status = StatusUnavailable
			if containsDMCA(line) {
				out.Status = StatusDmca
			}
		default:
			consumed = n
			done = true
			out.Status = StatusError
		}

	case cmdXOver, cmdXZVer:
		out.Type = TypeOverview
		switch code {
		case RPL_Overview:
			m := findBodyEnd(buf[n:])
			if m == 0 {
				return
			}
			consumed = n + m
			done = true
			block := buf[n : n+m-3]
			if c.kind == cmdXZVer {
				var data []byte
				data, err = inflate(block)
				if err != nil {
					log.WithFields(log.Fields{
						"pkg": "nntp",
					}).Error("overview inflate failed ", err)
					out.Status = StatusError
					err = nil
					return
				}
				out.Status = StatusSuccess
				out.Content = data
			} else {
				out.Status = StatusSuccess
				out.Content = append([]byte(nil), block...)
			}
		default:
			consumed = n
			done = true
			out.Status = StatusError
		}

	case cmdList:
		out.Type = TypeListing
		if code == RPL_List {
			m := findBodyEnd(buf[n:])
			if m == 0 {
				return
			}
			consumed = n + m
			done = true
			out.Status = StatusSuccess
			out.Content = append([]byte(nil), buf[n:n+m-3]...)
		} else {
			consumed = n
			done = true
			out.Status = StatusError
		}

	case cmdPing:
		consumed = n
		done = true

	case cmdQuit:
		consumed = n
		done = true
		if code != RPL_Quit {
			log.WithFields(log.Fields{
				"pkg":  "nntp",
				"code": code,
			}).Warn("unexpected response to QUIT")
		}
	}
	return
}

func trimCRLF(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return append([]byte(nil), line...)
}

// check a rejection line for a takedown marker
func containsDMCA(line []byte) bool {
	return bytes.Contains(bytes.ToLower(line), []byte("dmca"))
}

// inflate a compressed overview block into a growable buffer
// servers send either a zlib stream or a bare deflate stream
func inflate(src []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err == nil {
		defer zr.Close()
		return io.ReadAll(zr)
	}
	fr := flate.NewReader(bytes.NewReader(src))
	defer fr.Close()
	return io.ReadAll(fr)
}
