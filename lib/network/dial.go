package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// operation timed out
var ErrTimeout = errors.New("timeout")

// the operation was reset abruptly
var ErrReset = errors.New("reset")

// the operation was actively refused
var ErrRefused = errors.New("refused")

// the remote host could not be resolved
var ErrResolve = errors.New("resolve")

// generic dialer
// dials out to a remote address
// returns a net.Conn and nil on success
// returns nil and error if an error happens while dialing
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// plain tcp dialer
type TCPDialer struct {
	// connect timeout, zero means no timeout
	Timeout time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := &net.Dialer{
		Timeout: d.Timeout,
	}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// tls dialer
// wraps a tcp dial with a tls handshake
// the tls context is constructed once at process start and shared by
// every dialer that needs it, there is no hidden global
type TLSDialer struct {
	// tls context for outbound connections
	Config *tls.Config
	// connect timeout, zero means no timeout
	Timeout time.Duration
}

// create the process wide tls context for outbound nntp connections
func NewTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
}

func (d *TLSDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := &net.Dialer{
		Timeout: d.Timeout,
	}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, mapError(err)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	conf := d.Config
	if conf == nil {
		conf = NewTLSConfig()
	}
	if conf.ServerName == "" {
		conf = conf.Clone()
		conf.ServerName = host
	}
	tc := tls.Client(c, conf)
	if d.Timeout != 0 {
		tc.SetDeadline(time.Now().Add(d.Timeout))
	}
	err = tc.HandshakeContext(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"pkg":  "network",
			"addr": addr,
		}).Error("tls handshake failed ", err)
		c.Close()
		return nil, err
	}
	tc.SetDeadline(time.Time{})
	return tc, nil
}

// map a system level dial error to the coarse error taxonomy
// the original error stays wrapped underneath for logging
func mapError(err error) error {
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return fmt.Errorf("%w: %v", ErrResolve, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrRefused, err)
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %v", ErrReset, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	// some resolvers only surface a string
	if strings.Contains(err.Error(), "no such host") {
		return fmt.Errorf("%w: %v", ErrResolve, err)
	}
	return err
}
