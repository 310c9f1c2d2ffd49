package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

type NodeConfig struct {
	Name         string      `toml:"name"`
	ListenAddr   string      `toml:"listen_addr"`
	StatusAddr   string      `toml:"status_addr"`
	AdminToken   string      `toml:"admin_token"`
	IdentityFile string      `toml:"identity_file"`
	CorsOrigins  []string    `toml:"cors_origins"`
	FixedPeers   []string    `toml:"fixed_peers"`
	TrustedNodes []string    `toml:"trusted_nodes"`
	MaxPeers     int         `toml:"max_peers"`
	TLS          TLSConfig   `toml:"tls"`
	Proxy        ProxyConfig `toml:"proxy"`
}

type TLSConfig struct {
	SecurityMode       string `toml:"security_mode"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type ProxyConfig struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Name:         "ledgerd",
		ListenAddr:   ":51235",
		StatusAddr:   "127.0.0.1:5005",
		IdentityFile: "ledgerd.identity.json",
		MaxPeers:     21,
		TLS:          TLSConfig{SecurityMode: string(transport.SecurityModeDevelopment)},
	}
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func (c NodeConfig) withDefaults() NodeConfig {
	d := DefaultNodeConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = d.Name
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = d.ListenAddr
	}
	if strings.TrimSpace(c.IdentityFile) == "" {
		c.IdentityFile = d.IdentityFile
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = d.MaxPeers
	}
	if strings.TrimSpace(c.TLS.SecurityMode) == "" {
		c.TLS.SecurityMode = d.TLS.SecurityMode
	}
	return c
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// Transport maps the [tls] and [proxy] tables onto a transport config.
func (c NodeConfig) Transport() transport.Config {
	return transport.Config{
		SecurityMode: transport.SecurityMode(strings.TrimSpace(c.TLS.SecurityMode)),
		TLS: transport.TLSConfig{
			CertFile:           c.TLS.CertFile,
			KeyFile:            c.TLS.KeyFile,
			CAFile:             c.TLS.CAFile,
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		},
		Proxy: transport.ProxyConfig{
			Addr:     c.Proxy.Addr,
			Username: c.Proxy.Username,
			Password: c.Proxy.Password,
		},
	}.WithDefaults()
}

// ListenPort is the port advertised to peers.
func (c NodeConfig) ListenPort() (uint32, error) {
	_, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("node config missing name")
	}
	if _, err := cfg.ListenPort(); err != nil {
		return fmt.Errorf("node config listen_addr invalid: %w", err)
	}
	if cfg.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.StatusAddr); err != nil {
			return fmt.Errorf("node config status_addr invalid: %w", err)
		}
	}
	if cfg.MaxPeers < 0 {
		return fmt.Errorf("node config max_peers must be positive")
	}
	for i, ep := range cfg.FixedPeers {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(ep)); err != nil {
			return fmt.Errorf("fixed_peers[%d] invalid: %w", i, err)
		}
	}
	for i, id := range cfg.TrustedNodes {
		if _, err := identity.DecodeID(strings.TrimSpace(id)); err != nil {
			return fmt.Errorf("trusted_nodes[%d] invalid: %w", i, err)
		}
	}
	if err := cfg.Transport().Validate(); err != nil {
		return fmt.Errorf("node config tls invalid: %w", err)
	}
	return nil
}
