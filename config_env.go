// config_env.go: environment-variable overrides for Config
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package ttlog

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides fields of c with any matching TTLOG_* environment
// variables that are set: TTLOG_DIR, TTLOG_LEVEL, TTLOG_CAPACITY,
// TTLOG_CHANNEL, plus the supplemented TTLOG_SERVICE_NAME and
// TTLOG_FLUSH_INTERVAL. Unset variables leave the corresponding field
// untouched; malformed values are ignored rather than causing ApplyEnv to
// fail, since a bad env var should degrade to
// Config's own defaults, not abort startup.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TTLOG_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("TTLOG_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v := os.Getenv("TTLOG_LEVEL"); v != "" {
		if lvl, err := ParseLevel(v); err == nil {
			c.Level = lvl
		}
	}
	if v := os.Getenv("TTLOG_CAPACITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Capacity = n
		}
	}
	if v := os.Getenv("TTLOG_CHANNEL"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.ChannelCapacity = n
		}
	}
	if v := os.Getenv("TTLOG_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.FlushInterval = d
		}
	}
}

// LoadConfigFromEnv builds a Config from TTLOG_* environment variables on
// top of zero-valued defaults. Callers typically follow this with
// withDefaults (applied automatically by Init) to fill in anything the
// environment left unset.
func LoadConfigFromEnv() *Config {
	c := &Config{}
	c.ApplyEnv()
	return c
}
