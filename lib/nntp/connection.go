package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ensisoft/newsflash/lib/network"
)

// event callbacks delivered from a connection's goroutine
// implementations must not block for long, the connection loop is
// suspended while a hook runs
type EventHooks interface {
	// the connection completed its handshake
	OnConnected(name string)
	// a cmdlist finished executing, results are in its buffers
	OnDone(cl *CmdList)
	// the connection died, the error never propagates out of the
	// connection's goroutine any other way
	OnError(name string, err *Error)
}

const (
	// idle period after which a protocol no-op probes the connection
	DefaultPingInterval = 10 * time.Second
	// per recv deadline, exceeding it is a connection level timeout
	DefaultRecvTimeout = 15 * time.Second
)

// a connection owns one session bound to one socket and drives it from
// a dedicated goroutine, pulling cmdlists off the shared queue
type Connection struct {
	// connection name for logging and event attribution
	Name string
	// remote host:port
	Addr string
	// dialer, plain tcp or tls
	Dialer network.Dialer
	// shared work queue
	Queue *CmdQueue
	// event callbacks
	Hooks EventHooks
	// credentials callback, nil if the server needs none
	Auth func() (user, pass string)
	// enable command pipelining
	Pipelining bool
	// enable compressed overview transfers
	Compression bool
	// zero values take the defaults above
	PingInterval time.Duration
	RecvTimeout  time.Duration

	session *Session
	conn    net.Conn
	sendErr error

	cancel   chan struct{}
	shutdown chan struct{}
	done     chan struct{}
}

// launch the connection's goroutine
func (c *Connection) Start() {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = DefaultRecvTimeout
	}
	c.cancel = make(chan struct{}, 1)
	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})
	go c.run()
}

// request shutdown, always takes priority over work
// an in progress wait unwinds without completing the current cmdlist
func (c *Connection) Stop() {
	close(c.shutdown)
}

// interrupt the current wait so a cancelled cmdlist is noticed
func (c *Connection) CancelCurrent() {
	select {
	case c.cancel <- struct{}{}:
	default:
	}
}

// wait for the goroutine to exit
func (c *Connection) Join() {
	<-c.done
}

func (c *Connection) run() {
	defer close(c.done)
	defer func() {
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	if err := c.connect(); err != nil {
		c.report(err)
		return
	}
	// shutdown takes priority over work, a read blocked on a quiet
	// socket is kicked out of its wait immediately
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-c.shutdown:
			c.conn.SetReadDeadline(time.Now())
		case <-watch:
		}
	}()
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"name": c.Name,
		"addr": c.Addr,
	}).Info("connected")
	if c.Hooks != nil {
		c.Hooks.OnConnected(c.Name)
	}

	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			c.quit()
			return
		case <-c.cancel:
			// the cancelled cmdlist was observed between steps or
			// was never started, nothing to do here
		case <-ticker.C:
			c.session.Ping()
			if err := c.pump(nil, nil); err != nil {
				c.report(err)
				return
			}
		case <-c.Queue.Wait():
			for {
				cl := c.Queue.TryDequeue()
				if cl == nil {
					break
				}
				if cl.IsCancelled() {
					continue
				}
				if err := c.execute(cl); err != nil {
					c.report(err)
					return
				}
				if c.Hooks != nil && !cl.IsCancelled() {
					c.Hooks.OnDone(cl)
				}
				ticker.Reset(c.PingInterval)
			}
		}
	}
}

// open the socket and run the handshake sequence
func (c *Connection) connect() *Error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.Dialer.Dial(ctx, c.Addr)
	if err != nil {
		select {
		case <-c.shutdown:
			return &Error{Kind: KindInterrupted, Err: err}
		default:
		}
		return &Error{Kind: classifyDial(err), Err: err}
	}
	c.conn = conn

	s := NewSession()
	s.Pipelining = c.Pipelining
	s.Compression = c.Compression
	s.OnSend = func(cmd string) {
		if _, err := c.conn.Write([]byte(cmd)); err != nil && c.sendErr == nil {
			c.sendErr = err
		}
	}
	s.OnAuth = c.Auth
	c.session = s

	s.Start()
	return c.pump(nil, nil)
}

// execute one cmdlist to completion
// configuration iterates candidate groups until one selects, data
// commands then run with per item buffers reported back into the list
func (c *Connection) execute(cl *CmdList) *Error {
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"name": c.Name,
		"kind": cl.Kind.String(),
		"cmds": len(cl.Commands),
	}).Debug("executing cmdlist")

	if cl.NeedsToConfigure() {
		for i := 0; ; i++ {
			if cl.IsCancelled() {
				return nil
			}
			if !cl.SubmitConfigureCommand(i, c.session) {
				log.WithFields(log.Fields{
					"pkg":    "nntp-conn",
					"name":   c.Name,
					"groups": cl.Groups,
				}).Warn("no candidate group selected")
				return nil
			}
			var got Buffer
			err := c.pump(func(b *Buffer) {
				got = *b
			}, cl.IsCancelled)
			if err != nil {
				return err
			}
			if cl.ReceiveConfigureBuffer(i, &got) {
				break
			}
		}
	}
	if cl.IsCancelled() {
		return nil
	}
	cl.SubmitDataCommands(c.session)
	return c.pump(func(b *Buffer) {
		cl.ReceiveDataBuffer(b)
	}, cl.IsCancelled)
}

// drive session send/receive cycles until nothing is pending
// completed data buffers are handed to deliver, a cancellation observed
// between protocol steps stops delivering but keeps draining so the
// wire stays in sync with the command queue
func (c *Connection) pump(deliver func(*Buffer), cancelled func() bool) *Error {
	buf := make([]byte, 16*1024)
	var out Buffer
	abandoned := false
	for c.session.HasPending() {
		if cancelled != nil && cancelled() {
			abandoned = true
		}
		c.session.SendNext()
		if err := c.sendErr; err != nil {
			c.sendErr = nil
			return &Error{Kind: classifyIO(err), Err: err}
		}
		if c.session.NumPendingRecv() == 0 {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(c.RecvTimeout))
		// checked after arming the deadline so the watcher's immediate
		// deadline can never be overwritten by ours
		select {
		case <-c.shutdown:
			return &Error{Kind: KindInterrupted}
		default:
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			// a shutdown watcher expires the deadline to unblock us
			select {
			case <-c.shutdown:
				return &Error{Kind: KindInterrupted, Err: err}
			default:
			}
			return &Error{Kind: classifyIO(err), Err: err}
		}
		data := buf[:n]
		for {
			done, perr := c.session.RecvNext(data, &out)
			data = nil
			if perr != nil {
				return &Error{Kind: classifyProto(perr), Err: perr}
			}
			if !done {
				break
			}
			if out.Type != TypeNone && deliver != nil && !abandoned {
				deliver(&out)
			}
			out = Buffer{}
		}
	}
	return nil
}

// best effort QUIT on shutdown
func (c *Connection) quit() {
	if c.session == nil || c.session.State() == StateError {
		return
	}
	c.session.Quit()
	c.conn.SetDeadline(time.Now().Add(time.Second))
	c.pump(nil, nil)
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"name": c.Name,
	}).Info("closed")
}

func (c *Connection) report(err *Error) {
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"name": c.Name,
		"kind": err.Kind.String(),
	}).Error(err)
	if c.Hooks != nil {
		c.Hooks.OnError(c.Name, err)
	}
}

func classifyDial(err error) ErrorKind {
	switch {
	case errors.Is(err, network.ErrResolve):
		return KindResolve
	case errors.Is(err, network.ErrRefused):
		return KindRefused
	case errors.Is(err, network.ErrTimeout):
		return KindTimeout
	}
	var rerr tls.RecordHeaderError
	if errors.As(err, &rerr) {
		return KindTLS
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func classifyIO(err error) ErrorKind {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	var rerr tls.RecordHeaderError
	if errors.As(err, &rerr) {
		return KindTLS
	}
	return KindNetwork
}

func classifyProto(err error) ErrorKind {
	if errors.Is(err, ErrAuthRejected) {
		return KindForbidden
	}
	return KindProtocol
}
