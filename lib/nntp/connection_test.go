package nntp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return d.conn, nil
}

type testHooks struct {
	connected chan string
	done      chan *CmdList
	errs      chan *Error
}

func newTestHooks() *testHooks {
	return &testHooks{
		connected: make(chan string, 4),
		done:      make(chan *CmdList, 4),
		errs:      make(chan *Error, 4),
	}
}

func (h *testHooks) OnConnected(name string) {
	h.connected <- name
}

func (h *testHooks) OnDone(cl *CmdList) {
	h.done <- cl
}

func (h *testHooks) OnError(name string, err *Error) {
	h.errs <- err
}

// scripted in process news server over one half of a net.Pipe
// replies go through their own goroutine because the pipe is
// synchronous, a pipelined client writes its next command before it
// reads the previous reply
func runTestServer(t *testing.T, conn net.Conn, mute map[string]bool) {
	t.Helper()
	replies := make(chan string, 16)
	go func() {
		for r := range replies {
			if _, err := conn.Write([]byte(r)); err != nil {
				return
			}
		}
		conn.Close()
	}()
	go func() {
		defer close(replies)
		replies <- "200 test server ready\r\n"
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			cmd := strings.ToUpper(strings.Fields(line)[0])
			if mute[cmd] {
				continue
			}
			var reply string
			switch cmd {
			case "CAPABILITIES":
				reply = "101 capabilities follow\r\nVERSION 2\r\nXOVER\r\n.\r\n"
			case "MODE":
				reply = "200 posting allowed\r\n"
			case "GROUP":
				if strings.HasSuffix(line, "alt.test") {
					reply = "211 3 1 3 alt.test\r\n"
				} else {
					reply = "411 no such newsgroup\r\n"
				}
			case "XOVER":
				reply = "224 overview follows\r\n" +
					"1\tfirst post\tjoe\tdate\t<1@t>\t\t100\t4\r\n" +
					"2\tsecond post\tbob\tdate\t<2@t>\t\t200\t8\r\n" +
					".\r\n"
			case "BODY":
				if strings.Contains(line, "<gone@t>") {
					reply = "430 no such article\r\n"
				} else {
					reply = "222 body follows\r\nhello world\r\n.\r\n"
				}
			case "DATE":
				reply = "111 20260831000000\r\n"
			case "QUIT":
				replies <- "205 goodbye\r\n"
				return
			default:
				reply = "500 unknown command\r\n"
			}
			replies <- reply
		}
	}()
}

func startTestConnection(t *testing.T, mute map[string]bool) (*Connection, *testHooks, *CmdQueue) {
	t.Helper()
	client, server := net.Pipe()
	runTestServer(t, server, mute)

	hooks := newTestHooks()
	queue := NewCmdQueue()
	conn := &Connection{
		Name:         "test/0",
		Addr:         "test:119",
		Dialer:       &pipeDialer{conn: client},
		Queue:        queue,
		Hooks:        hooks,
		Pipelining:   true,
		PingInterval: time.Hour,
		RecvTimeout:  2 * time.Second,
	}
	conn.Start()
	return conn, hooks, queue
}

func TestConnectionHandshake(t *testing.T) {
	conn, hooks, _ := startTestConnection(t, nil)
	select {
	case <-hooks.connected:
	case err := <-hooks.errs:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("handshake timed out")
	}
	conn.Stop()
	conn.Join()
}

func TestConnectionExecutesXOver(t *testing.T) {
	conn, hooks, queue := startTestConnection(t, nil)
	defer func() {
		conn.Stop()
		conn.Join()
	}()

	queue.Enqueue(NewXOverList("alt.test", []string{"1-3"}))
	select {
	case cl := <-hooks.done:
		if !cl.IsGood() {
			t.Fatal("cmdlist failed")
		}
		b := cl.Buffers[0]
		if b.Status != StatusSuccess || b.Type != TypeOverview {
			t.Fatalf("got %s/%s", b.Type, b.Status)
		}
		if !strings.Contains(string(b.Content), "first post") {
			t.Fatalf("content %q", b.Content)
		}
	case err := <-hooks.errs:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("cmdlist timed out")
	}
}

func TestConnectionBodyAndFallback(t *testing.T) {
	conn, hooks, queue := startTestConnection(t, nil)
	defer func() {
		conn.Stop()
		conn.Join()
	}()

	// first candidate group is missing, second selects
	cl := NewBodyList([]string{"alt.missing", "alt.test"}, []string{"<1@t>", "<gone@t>"})
	queue.Enqueue(cl)
	select {
	case got := <-hooks.done:
		if !got.IsGood() {
			t.Fatal("cmdlist failed")
		}
		if got.ConfiguredGroup() != 1 {
			t.Fatalf("configured %d", got.ConfiguredGroup())
		}
		if got.Buffers[0].Status != StatusSuccess {
			t.Fatalf("first body %s", got.Buffers[0].Status)
		}
		if string(got.Buffers[0].Content) != "hello world\r\n.\r\n" {
			t.Fatalf("content %q", got.Buffers[0].Content)
		}
		if got.Buffers[1].Status != StatusUnavailable {
			t.Fatalf("second body %s", got.Buffers[1].Status)
		}
	case err := <-hooks.errs:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("cmdlist timed out")
	}
}

func TestConnectionGroupExhausted(t *testing.T) {
	conn, hooks, queue := startTestConnection(t, nil)
	defer func() {
		conn.Stop()
		conn.Join()
	}()

	cl := NewBodyList([]string{"alt.missing", "alt.also.missing"}, []string{"<1@t>"})
	queue.Enqueue(cl)
	select {
	case got := <-hooks.done:
		if got.IsGood() {
			t.Fatal("exhausted candidates must fail the cmdlist")
		}
		if !got.Buffers[0].Empty() {
			t.Fatal("no data command may have run")
		}
	case err := <-hooks.errs:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("cmdlist timed out")
	}
}

// a stop while the goroutine is blocked reading a quiet socket must
// unwind immediately, not wait out the recv deadline
func TestConnectionStopInterruptsRead(t *testing.T) {
	client, server := net.Pipe()
	runTestServer(t, server, map[string]bool{"XOVER": true})

	hooks := newTestHooks()
	queue := NewCmdQueue()
	conn := &Connection{
		Name:        "test/0",
		Addr:        "test:119",
		Dialer:      &pipeDialer{conn: client},
		Queue:       queue,
		Hooks:       hooks,
		RecvTimeout: time.Minute,
	}
	conn.Start()
	select {
	case <-hooks.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake timed out")
	}
	queue.Enqueue(NewXOverList("alt.test", []string{"1-3"}))
	// let the goroutine block in the read before stopping
	time.Sleep(300 * time.Millisecond)

	begin := time.Now()
	conn.Stop()
	conn.Join()
	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Fatalf("shutdown took %s, blocked until the recv deadline", elapsed)
	}
	select {
	case err := <-hooks.errs:
		if err.Kind != KindInterrupted {
			t.Fatalf("got %s", err.Kind)
		}
	default:
		t.Fatal("no interrupt surfaced")
	}
}

// a conn wrapper whose writes start failing on demand
type brokenWriteConn struct {
	net.Conn
	fail atomic.Bool
}

func (c *brokenWriteConn) Write(p []byte) (int, error) {
	if c.fail.Load() {
		return 0, syscall.EPIPE
	}
	return c.Conn.Write(p)
}

// a failed send surfaces as a network error right away instead of
// waiting for the matching read to time out
func TestConnectionSendFailure(t *testing.T) {
	client, server := net.Pipe()
	runTestServer(t, server, nil)
	wrapped := &brokenWriteConn{Conn: client}

	hooks := newTestHooks()
	queue := NewCmdQueue()
	conn := &Connection{
		Name:        "test/0",
		Addr:        "test:119",
		Dialer:      &pipeDialer{conn: wrapped},
		Queue:       queue,
		Hooks:       hooks,
		RecvTimeout: time.Minute,
	}
	conn.Start()
	defer func() {
		conn.Stop()
		conn.Join()
	}()
	select {
	case <-hooks.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake timed out")
	}
	wrapped.fail.Store(true)
	queue.Enqueue(NewXOverList("alt.test", []string{"1-3"}))
	select {
	case err := <-hooks.errs:
		if err.Kind != KindNetwork {
			t.Fatalf("got %s", err.Kind)
		}
	case <-hooks.done:
		t.Fatal("cmdlist should not complete")
	case <-time.After(5 * time.Second):
		t.Fatal("send failure never surfaced")
	}
}

// a server that stops answering trips the per recv deadline, surfaced
// as a connection level timeout rather than a data level failure
func TestConnectionRecvTimeout(t *testing.T) {
	conn, hooks, queue := startTestConnection(t, map[string]bool{"XOVER": true})
	defer func() {
		conn.Stop()
		conn.Join()
	}()

	select {
	case <-hooks.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake timed out")
	}
	queue.Enqueue(NewXOverList("alt.test", []string{"1-3"}))
	select {
	case err := <-hooks.errs:
		if err.Kind != KindTimeout {
			t.Fatalf("got %s", err.Kind)
		}
	case <-hooks.done:
		t.Fatal("cmdlist should not complete")
	case <-time.After(10 * time.Second):
		t.Fatal("no error surfaced")
	}
}
