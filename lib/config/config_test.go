package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureJSONCreatesDefault(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "newsflash.json")
	cfg, err := EnsureJSON(fname)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(fname); err != nil {
		t.Fatal("config file not created")
	}
	if cfg.Log != DefaultConfig.Log || cfg.DataDir != DefaultConfig.DataDir {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Addr != DefaultServerConfig.Addr {
		t.Errorf("server defaults not applied: %+v", cfg.Servers)
	}

	// a second ensure loads the existing file instead of rewriting it
	cfg2, err := EnsureJSON(fname)
	if err != nil {
		t.Fatal(err)
	}
	if cfg2.DataDir != cfg.DataDir {
		t.Error("reload mismatch")
	}
}

func TestLoadJSONMissing(t *testing.T) {
	if _, err := LoadJSON(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fail()
	}
}

func TestImportINI(t *testing.T) {
	ini := `[server-primary]
host=news.example.com
port=563
ssl=1
user=joe
pass=secret
connections=8
pipelining=1
compression=1
ping=30

[server-backup]
host=backup.example.net
port=119

[server-broken]
user=nobody

[other-section]
host=ignored.example.org
port=119
`
	fname := filepath.Join(t.TempDir(), "newsflash.ini")
	if err := os.WriteFile(fname, []byte(ini), 0600); err != nil {
		t.Fatal(err)
	}
	servers, err := ImportINI(fname)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 2 {
		t.Fatalf("imported %d servers", len(servers))
	}
	p := servers[0]
	if p.Name != "primary" || p.Addr != "news.example.com:563" {
		t.Errorf("primary: %+v", p)
	}
	if !p.TLS || !p.Pipelining || !p.Compression {
		t.Errorf("primary flags: %+v", p)
	}
	if p.Username != "joe" || p.Password != "secret" {
		t.Errorf("primary credentials: %+v", p)
	}
	if p.Connections != 8 || p.PingInterval != 30*time.Second {
		t.Errorf("primary tuning: %+v", p)
	}
	b := servers[1]
	if b.Name != "backup" || b.Addr != "backup.example.net:119" {
		t.Errorf("backup: %+v", b)
	}
	if b.TLS || b.Pipelining {
		t.Errorf("backup flags: %+v", b)
	}
	if b.Connections != DefaultServerConfig.Connections {
		t.Errorf("backup connections: %d", b.Connections)
	}
}

func TestGenINIRoundTrip(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "gen.ini")
	if err := GenINI(fname); err != nil {
		t.Fatal(err)
	}
	servers, err := ImportINI(fname)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 {
		t.Fatalf("imported %d servers", len(servers))
	}
	if servers[0].Name != "example" || servers[0].Addr != "news.example.com:119" {
		t.Errorf("got %+v", servers[0])
	}
}
