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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "binlog_dir: /data/binlogs\navro_dir: /data/avro\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "utc", cfg.Timezone)
	assert.Equal(t, 15, cfg.MaxBackoffSeconds)
	assert.Equal(t, "/data/binlogs", cfg.BinlogDir)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "binlog_dir: /d\navro_dir: /a\ntimezone: local\nrow_threshold: 500\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Timezone)
	assert.Equal(t, 500, cfg.RowThreshold)
}

func TestLoadRejectsMissingBinlogDir(t *testing.T) {
	path := writeConfig(t, "avro_dir: /a\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, "binlog_dir: /d\navro_dir: /a\ntimezone: mars\n")
	_, err := Load(path)
	assert.Error(t, err)
}
