package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node", "":
		return nodeTemplate, nil
	case "production":
		return productionTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `name = "ledgerd"
listen_addr = ":51235"
status_addr = "127.0.0.1:5005"
admin_token = ""
identity_file = "ledgerd.identity.json"
cors_origins = ["http://localhost:3000"]
max_peers = 21
fixed_peers = []
trusted_nodes = []

[tls]
security_mode = "development"

[proxy]
addr = ""

[peer]
verify_timeout = "15s"
max_frame_bytes = 8388608
max_send_queue_warn = 1024

[peer.punish]
threshold = 100.0
invalid_weight = 25.0
unwanted_weight = 10.0
unknown_weight = 2.0
unknown_flood_weight = 10.0
unknown_rate = 10.0
unknown_burst = 20
half_life = "1m"
`

const productionTemplate = `name = "ledgerd"
listen_addr = ":51235"
status_addr = "127.0.0.1:5005"
admin_token = "change-me"
identity_file = "/var/lib/ledgerd/identity.json"
max_peers = 50
fixed_peers = []
trusted_nodes = []

[tls]
security_mode = "production"
cert_file = "/etc/ledgerd/tls/node.crt"
key_file = "/etc/ledgerd/tls/node.key"
ca_file = "/etc/ledgerd/tls/ca.crt"

[peer]
verify_timeout = "10s"

[peer.punish]
threshold = 100.0
half_life = "5m"
`
