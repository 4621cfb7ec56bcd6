// Copyright 2024 The Avrorouter Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the converter's YAML configuration file.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// Config is the top-level converter configuration.
type Config struct {
	// BinlogDir is where source binlog/relay files are read from.
	BinlogDir string `yaml:"binlog_dir"`
	// AvroDir is where .avsc/.avro output files are written.
	AvroDir string `yaml:"avro_dir"`
	// GTIDIndexPath is the boltdb file backing the GTID index.
	GTIDIndexPath string `yaml:"gtid_index_path"`

	// RowThreshold and TxThreshold are the block-grouping thresholds of
	// spec.md §4.I; zero means "use the component default".
	RowThreshold int `yaml:"row_threshold"`
	TxThreshold  int `yaml:"tx_threshold"`

	// Domain is passed to the replica source as the server id it presents
	// to the master in its COM_BINLOG_DUMP_GTID request.
	Domain uint32 `yaml:"domain"`

	// Timezone is "utc" (default) or "local"; Load rejects any other
	// value. No component reads it: TIMESTAMP/TIMESTAMP2 columns are
	// written as seconds since the epoch, without timezone formatting.
	Timezone string `yaml:"timezone"`

	// MaxBackoffSeconds is loaded with a default of 15. The converter
	// loop does not read it: its LAST_FILE backoff ceiling is the fixed
	// convert.MaxBackoff (15 seconds).
	MaxBackoffSeconds int `yaml:"max_backoff_seconds"`
}

// Default returns a Config with every optional field at its spec.md
// default.
func Default() Config {
	return Config{
		Timezone:          "utc",
		MaxBackoffSeconds: 15,
	}
}

// Load reads and parses a YAML config file at path, filling in defaults
// for anything left unset.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, cdcerr.IO.New(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, cdcerr.Corruption.New(err)
	}
	if cfg.BinlogDir == "" {
		return Config{}, cdcerr.Schema.New("config missing binlog_dir")
	}
	if cfg.AvroDir == "" {
		return Config{}, cdcerr.Schema.New("config missing avro_dir")
	}
	if cfg.Timezone != "utc" && cfg.Timezone != "local" {
		return Config{}, cdcerr.Schema.New("config timezone must be utc or local")
	}
	return cfg, nil
}
