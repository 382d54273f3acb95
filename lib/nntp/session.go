package nntp

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// session state
// none -> init -> authenticate -> ready -> transfer -> (error | quitting)
type SessionState int

const (
	StateNone SessionState = iota
	StateInit
	StateAuthenticate
	StateReady
	StateTransfer
	StateError
	StateQuitting
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticate:
		return "authenticate"
	case StateReady:
		return "ready"
	case StateTransfer:
		return "transfer"
	case StateError:
		return "error"
	case StateQuitting:
		return "quitting"
	}
	return "none"
}

// per connection nntp protocol state machine
// turns logical requests into a queue of wire commands, parses the
// responses and manages authentication and pipelining eligibility
type Session struct {
	// emit one request line on the wire, trailing crlf included
	OnSend func(cmd string)
	// produce credentials when the server demands authentication
	OnAuth func() (user, pass string)

	// allow sending runs of pipelineable commands back to back
	Pipelining bool
	// use the compressed overview variant
	Compression bool

	state SessionState
	// commands not yet sent
	send []*command
	// commands sent, awaiting response, strict fifo wrt the wire
	recv []*command
	// bytes received from the socket not yet consumed by a parser
	buffer []byte

	capsReceived  bool
	authenticated bool
	caps          map[string]bool
}

func NewSession() *Session {
	return &Session{
		caps: make(map[string]bool),
	}
}

// drop all queued commands and buffered bytes
// the connection is expected to be reopened before reuse
func (s *Session) Reset() {
	s.state = StateNone
	s.send = nil
	s.recv = nil
	s.buffer = nil
	s.capsReceived = false
	s.authenticated = false
	s.caps = make(map[string]bool)
}

func (s *Session) State() SessionState {
	return s.state
}

// enqueue the 3 command handshake sequence
// greeting, capability query, mode reader
func (s *Session) Start() {
	s.state = StateInit
	s.send = append(s.send,
		welcomeCmd(),
		capabilitiesCmd(),
		modeReaderCmd())
}

// enqueue a group change
// the caller receives a groupinfo buffer with the raw response line
func (s *Session) ChangeGroup(name string) {
	s.send = append(s.send, groupCmd(name))
}

// enqueue a body retrieval by message-id or article number
func (s *Session) RetrieveArticle(id string) {
	s.send = append(s.send, bodyCmd(id))
}

// enqueue an overview retrieval for an inclusive article number range
func (s *Session) RetrieveHeaders(first, last uint64) {
	if s.Compression {
		s.send = append(s.send, xzverCmd(first, last))
	} else {
		s.send = append(s.send, xoverCmd(first, last))
	}
}

// enqueue a newsgroup listing
func (s *Session) RetrieveList() {
	s.send = append(s.send, listCmd())
}

// enqueue a protocol no-op keepalive
func (s *Session) Ping() {
	s.send = append(s.send, pingCmd())
}

// enqueue the session teardown
func (s *Session) Quit() {
	s.state = StateQuitting
	s.send = append(s.send, quitCmd())
}

// true while any command is queued or awaiting a response
func (s *Session) HasPending() bool {
	return len(s.send) > 0 || len(s.recv) > 0
}

// number of commands sent and awaiting a response
func (s *Session) NumPendingRecv() int {
	return len(s.recv)
}

// send as many queued commands as the pipelining policy allows
// a non pipelineable command awaiting its response blocks all further
// sends, with pipelining enabled a whole run of pipelineable commands
// is emitted back to back
func (s *Session) SendNext() {
	for len(s.send) > 0 {
		next := s.send[0]
		if len(s.recv) > 0 {
			if !s.Pipelining || !next.pipeline {
				return
			}
			for _, c := range s.recv {
				if !c.pipeline {
					return
				}
			}
		}
		s.send = s.send[1:]
		if next.line != "" {
			log.WithFields(log.Fields{
				"pkg": "nntp",
				"io":  "send",
			}).Debug(next.line)
			s.OnSend(next.line + "\r\n")
		}
		s.recv = append(s.recv, next)
		if !s.Pipelining || !next.pipeline {
			return
		}
	}
}

// feed raw socket bytes to the command at the front of the awaiting
// queue, returns true when that command completed and out was filled
// in, false while the frame is not yet fully buffered
// call again with nil data to drain further pipelined completions out
// of the already buffered bytes
func (s *Session) RecvNext(data []byte, out *Buffer) (bool, error) {
	s.buffer = append(s.buffer, data...)
	if len(s.recv) == 0 {
		return false, nil
	}
	cmd := s.recv[0]
	consumed, done, needAuth, err := cmd.parse(s.buffer, out, s)
	if err != nil {
		s.state = StateError
		return false, err
	}
	if !done {
		return false, nil
	}
	if needAuth {
		// mid pipeline re-authentication cannot be safely interleaved
		if len(s.recv) != 1 {
			panic("nntp: authentication demanded with multiple commands in flight")
		}
		s.buffer = s.buffer[consumed:]
		s.recv = s.recv[:0]
		s.reschedule(cmd)
		return false, nil
	}
	s.buffer = s.buffer[consumed:]
	s.recv = s.recv[1:]
	s.transition(cmd)
	return true, nil
}

// reschedule a command the server answered with 480
// fresh credentials are pushed to the front of the send queue ahead of
// the original command, plus a capability query if caps are unknown
func (s *Session) reschedule(cmd *command) {
	s.state = StateAuthenticate
	if s.OnAuth == nil {
		log.WithFields(log.Fields{
			"pkg": "nntp",
		}).Error("server demands authentication but no credentials are configured")
		s.state = StateError
		return
	}
	user, pass := s.OnAuth()
	head := []*command{authUserCmd(user), authPassCmd(pass)}
	if !s.capsReceived {
		head = append(head, capabilitiesCmd())
	}
	head = append(head, cmd)
	s.send = append(head, s.send...)
}

// drop a queued AUTHINFO PASS from the front of the send queue
// used when the server accepted AUTHINFO USER outright
func (s *Session) dropFrontAuthPass() {
	if len(s.send) > 0 && s.send[0].kind == cmdAuthPass {
		s.send = s.send[1:]
	}
}

func (s *Session) transition(cmd *command) {
	switch cmd.kind {
	case cmdAuthUser, cmdAuthPass:
		s.state = StateAuthenticate
	case cmdGroup, cmdBody, cmdXOver, cmdXZVer, cmdList:
		s.state = StateTransfer
	case cmdQuit:
		s.state = StateQuitting
		return
	}
	if !s.HasPending() && s.state != StateError {
		s.state = StateReady
	}
}

// record capability lines from a CAPABILITIES response block
func (s *Session) parseCaps(block []byte) {
	for _, line := range strings.Split(string(block), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		word := strings.ToUpper(strings.Fields(line)[0])
		s.caps[word] = true
	}
	if s.caps["XZVER"] || s.caps["COMPRESS"] {
		s.Compression = true
	}
}

// true if the server advertised the named capability
func (s *Session) HasCapability(name string) bool {
	return s.caps[strings.ToUpper(name)]
}

// true once the server accepted our credentials
func (s *Session) Authenticated() bool {
	return s.authenticated
}
