package config

import (
	"time"
)

// configuration for 1 news server
type ServerConfig struct {
	// the name of this server
	Name string `json:"name"`
	// remote server's address, host:port
	Addr string `json:"addr"`
	// do we want to use tls?
	TLS bool `json:"tls"`
	// nntp username to log in with
	Username string `json:"-"`
	// nntp password to use when logging in
	Password string `json:"-"`
	// number of concurrent connections to open
	Connections int `json:"connections"`
	// allow command pipelining on this server
	Pipelining bool `json:"pipelining"`
	// allow compressed overview transfers
	Compression bool `json:"compression"`
	// idle keepalive interval
	PingInterval time.Duration `json:"ping_interval"`
}

var DefaultServerConfig = ServerConfig{
	Name:         "example",
	Addr:         "news.example.com:119",
	Connections:  2,
	Pipelining:   true,
	PingInterval: 10 * time.Second,
}
