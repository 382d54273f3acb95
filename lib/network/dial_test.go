package network

import (
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestMapError(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{&net.DNSError{Err: "no such host", Name: "news.example.com"}, ErrResolve},
		{&net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, ErrRefused},
		{&net.OpError{Op: "read", Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}}, ErrReset},
		{&net.OpError{Op: "dial", Err: timeoutErr{}}, ErrTimeout},
	}
	for _, c := range cases {
		got := mapError(c.in)
		if !errors.Is(got, c.want) {
			t.Errorf("mapError(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	// unrecognized errors pass through unchanged
	plain := errors.New("strange failure")
	if got := mapError(plain); got != plain {
		t.Errorf("passthrough: %v", got)
	}
}
