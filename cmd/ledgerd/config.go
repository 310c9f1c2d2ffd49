package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ledgerlink/internal/peer"
)

type punishTable struct {
	Threshold          float64 `toml:"threshold"`
	InvalidWeight      float64 `toml:"invalid_weight"`
	UnwantedWeight     float64 `toml:"unwanted_weight"`
	UnknownWeight      float64 `toml:"unknown_weight"`
	UnknownFloodWeight float64 `toml:"unknown_flood_weight"`
	UnknownRate        float64 `toml:"unknown_rate"`
	UnknownBurst       int     `toml:"unknown_burst"`
	HalfLife           string  `toml:"half_life"`
}

type peerTable struct {
	VerifyTimeout    string      `toml:"verify_timeout"`
	MaxFrameBytes    uint64      `toml:"max_frame_bytes"`
	MaxSendQueueWarn int         `toml:"max_send_queue_warn"`
	Punish           punishTable `toml:"punish"`
}

type fileConfig struct {
	Peer peerTable `toml:"peer"`
}

// loadPeerConfig overlays the [peer] table of path onto the connection
// defaults. Keys that are absent keep their default.
func loadPeerConfig(path string) (peer.Config, error) {
	cfg := peer.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return peer.Config{}, fmt.Errorf("load peer config: %w", err)
	}

	if meta.IsDefined("peer", "verify_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Peer.VerifyTimeout))
		if err != nil {
			return peer.Config{}, fmt.Errorf("parse peer.verify_timeout: %w", err)
		}
		cfg.VerifyTimeout = d
	}

	if meta.IsDefined("peer", "max_frame_bytes") {
		cfg.MaxFrameBytes = raw.Peer.MaxFrameBytes
	}

	if meta.IsDefined("peer", "max_send_queue_warn") {
		cfg.SendQueueWarn = raw.Peer.MaxSendQueueWarn
	}

	p := raw.Peer.Punish
	if meta.IsDefined("peer", "punish", "threshold") {
		cfg.Punish.Threshold = p.Threshold
	}
	if meta.IsDefined("peer", "punish", "invalid_weight") {
		cfg.Punish.InvalidWeight = p.InvalidWeight
	}
	if meta.IsDefined("peer", "punish", "unwanted_weight") {
		cfg.Punish.UnwantedWeight = p.UnwantedWeight
	}
	if meta.IsDefined("peer", "punish", "unknown_weight") {
		cfg.Punish.UnknownWeight = p.UnknownWeight
	}
	if meta.IsDefined("peer", "punish", "unknown_flood_weight") {
		cfg.Punish.UnknownFloodWeight = p.UnknownFloodWeight
	}
	if meta.IsDefined("peer", "punish", "unknown_rate") {
		cfg.Punish.UnknownRate = p.UnknownRate
	}
	if meta.IsDefined("peer", "punish", "unknown_burst") {
		cfg.Punish.UnknownBurst = p.UnknownBurst
	}
	if meta.IsDefined("peer", "punish", "half_life") {
		d, err := time.ParseDuration(strings.TrimSpace(p.HalfLife))
		if err != nil {
			return peer.Config{}, fmt.Errorf("parse peer.punish.half_life: %w", err)
		}
		if d <= 0 {
			d = peer.NoDecay
		}
		cfg.Punish.HalfLife = d
	}

	return cfg, nil
}
