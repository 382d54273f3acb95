package config

import (
	"bytes"
	"encoding/json"
	"os"
)

// main configuration
type Config struct {
	// news servers to connect to
	Servers []*ServerConfig `json:"servers"`
	// log level
	Log string `json:"log"`
	// directory for catalog and idlist files
	DataDir string `json:"data_dir"`

	// unexported fields ...

	// absolute filepath to configuration
	fpath string
}

// default configuration
var DefaultConfig = Config{
	Servers: []*ServerConfig{&DefaultServerConfig},
	Log:     "info",
	DataDir: "data",
}

// reload configuration
func (c *Config) Reload() (err error) {
	var b []byte
	b, err = os.ReadFile(c.fpath)
	if err == nil {
		err = json.Unmarshal(b, c)
	}
	return
}

// ensure that a config file exists
// creates one if it does not exist
func EnsureJSON(fname string) (cfg *Config, err error) {
	_, err = os.Stat(fname)
	if os.IsNotExist(err) {
		err = nil
		var d []byte
		d, err = json.Marshal(&DefaultConfig)
		if err == nil {
			b := new(bytes.Buffer)
			err = json.Indent(b, d, "", "  ")
			if err == nil {
				err = os.WriteFile(fname, b.Bytes(), 0600)
			}
		}
	}
	if err == nil {
		cfg, err = LoadJSON(fname)
	}
	return
}

// load configuration file
func LoadJSON(fname string) (cfg *Config, err error) {
	cfg = new(Config)
	cfg.fpath = fname
	err = cfg.Reload()
	if err != nil {
		cfg = nil
	}
	return
}
