package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/majestrate/configparser"
	log "github.com/sirupsen/logrus"
)

// import a legacy newsflash.ini server list
// one [server-<name>] section per server with host, port, ssl, user,
// pass, connections, pipelining options
func ImportINI(fname string) (servers []*ServerConfig, err error) {
	conf, err := configparser.Read(fname)
	if err != nil {
		return nil, err
	}
	sections, err := conf.Find("server-*")
	if err != nil {
		return nil, err
	}
	for _, sect := range sections {
		name := strings.Trim(sect.Name()[7:], " ")
		host := strings.Trim(sect.ValueOf("host"), " ")
		port := strings.Trim(sect.ValueOf("port"), " ")
		if host == "" || port == "" {
			log.WithFields(log.Fields{
				"pkg":     "config",
				"section": sect.Name(),
			}).Warn("server section without host/port, skipped")
			continue
		}
		s := &ServerConfig{
			Name:         name,
			Addr:         host + ":" + port,
			Username:     sect.ValueOf("user"),
			Password:     sect.ValueOf("pass"),
			Connections:  DefaultServerConfig.Connections,
			PingInterval: DefaultServerConfig.PingInterval,
		}
		if sect.ValueOf("ssl") == "1" {
			s.TLS = true
		}
		if sect.ValueOf("pipelining") == "1" {
			s.Pipelining = true
		}
		if sect.ValueOf("compression") == "1" {
			s.Compression = true
		}
		if v := sect.ValueOf("connections"); v != "" {
			if n, err := strconv.Atoi(strings.Trim(v, " ")); err == nil && n > 0 {
				s.Connections = n
			}
		}
		if v := sect.ValueOf("ping"); v != "" {
			if n, err := strconv.Atoi(strings.Trim(v, " ")); err == nil && n > 0 {
				s.PingInterval = time.Duration(n) * time.Second
			}
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// generate a default newsflash.ini
func GenINI(fname string) error {
	conf := configparser.NewConfiguration()
	sect := conf.NewSection("server-example")
	sect.Add("host", "news.example.com")
	sect.Add("port", "119")
	sect.Add("ssl", "0")
	sect.Add("user", "")
	sect.Add("pass", "")
	sect.Add("connections", "2")
	sect.Add("pipelining", "1")
	return configparser.Save(conf, fname)
}
