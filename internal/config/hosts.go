// Package config loads the Windows host inventory and resolves credentials.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"soclog/internal/fault"
)

// HostConfig describes one Windows host to collect from.
type HostConfig struct {
	Name        string `yaml:"name" json:"name"`
	Host        string `yaml:"host" json:"host"`
	Username    string `yaml:"username" json:"username"`
	PasswordEnv string `yaml:"password_env,omitempty" json:"password_env,omitempty"`
	AskPassword bool   `yaml:"ask_password,omitempty" json:"ask_password,omitempty"`
}

type inventory struct {
	Hosts []HostConfig `yaml:"hosts"`
}

// LoadHosts reads a YAML host inventory of the form:
//
//	hosts:
//	  - name: win10lab
//	    host: 192.168.56.10
//	    username: LAB\analyst
//	    password_env: SOCLOG_WIN10_PASS
//	  - host: win11.lab.local
//	    username: LAB\dfir
//	    ask_password: true
//
// An entry without a name is named after its host.
func LoadHosts(path string) ([]HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "read host inventory")
	}
	return ParseHosts(data)
}

// ParseHosts decodes and validates inventory YAML.
func ParseHosts(data []byte) ([]HostConfig, error) {
	var inv inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fault.Wrap(err, fault.KindValidation, "parse host inventory")
	}

	hosts := make([]HostConfig, 0, len(inv.Hosts))
	for i, h := range inv.Hosts {
		if h.Name == "" {
			h.Name = h.Host
		}
		if h.Name == "" {
			return nil, fault.New(fault.KindValidation, fmt.Sprintf("host entry %d must have at least 'name' or 'host'", i))
		}
		if h.Host == "" || h.Username == "" {
			return nil, fault.New(fault.KindValidation, fmt.Sprintf("host entry %d (%q) is missing 'host' or 'username'", i, h.Name))
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// SingleHost builds a one-entry inventory from command-line flags.
func SingleHost(host, username, passwordEnv string, askPassword bool) ([]HostConfig, error) {
	if host == "" || username == "" {
		return nil, fault.New(fault.KindValidation, "--host requires --user")
	}
	return []HostConfig{{
		Name:        host,
		Host:        host,
		Username:    username,
		PasswordEnv: passwordEnv,
		AskPassword: askPassword,
	}}, nil
}
