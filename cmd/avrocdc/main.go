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

// Command avrocdc walks MySQL/MariaDB binlog files and converts row
// changes into per-table Avro files, per spec.md's converter loop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mariadb-corporation/avrorouter/avro"
	"github.com/mariadb-corporation/avrorouter/config"
	"github.com/mariadb-corporation/avrorouter/convert"
	"github.com/mariadb-corporation/avrorouter/gtidindex"
	"github.com/mariadb-corporation/avrorouter/replicasource"
)

var (
	configPath  = flag.String("config", "avrocdc.yaml", "path to the converter's YAML config file")
	startFile   = flag.String("start-file", "", "binlog/relay file to begin walking from (defaults to <binlog_dir>/mysql-bin.000001)")
	serveJSON   = flag.String("serve-json", "", "dump the named open table (database.table.version) as newline-delimited JSON and exit, instead of running the converter loop")
	masterHost  = flag.String("master-host", "", "replication master host; when set, avrocdc also runs a replica source feeding the binlog directory")
	masterPort  = flag.Int("master-port", 3306, "replication master port")
	masterUser  = flag.String("master-user", "", "replication master user")
	masterPass  = flag.String("master-password", "", "replication master password")
	startGTID   = flag.String("start-gtid", "", "GTID to start replicating from (empty follows the master's current position)")
)

func main() {
	flag.Parse()
	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	if *serveJSON != "" {
		if err := dumpTableJSON(cfg, *serveJSON, os.Stdout); err != nil {
			log.WithError(err).Fatal("serve-json failed")
		}
		return
	}

	conv := convert.NewConverter(cfg.AvroDir, log, nil)
	if cfg.RowThreshold > 0 {
		conv.RowThreshold = cfg.RowThreshold
	}
	if cfg.TxThreshold > 0 {
		conv.TxThreshold = cfg.TxThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down avrocdc")
		cancel()
	}()

	if *masterHost != "" {
		master := replicasource.MasterConfig{
			Host:     *masterHost,
			Port:     *masterPort,
			User:     *masterUser,
			Password: *masterPass,
			ServerID: cfg.Domain,
		}
		src, err := replicasource.New(master, cfg.BinlogDir, "mysql-bin", log)
		if err != nil {
			log.WithError(err).Fatal("failed to start replica source")
		}
		go func() {
			if err := src.Run(ctx, *startGTID); err != nil {
				log.WithError(err).Error("replica source stopped")
			}
		}()
	}

	path := *startFile
	if path == "" {
		path = filepath.Join(cfg.BinlogDir, "mysql-bin.000001")
	}

	if err := run(ctx, conv, path, log); err != nil {
		log.WithError(err).Fatal("converter loop stopped")
	}

	if cfg.GTIDIndexPath != "" {
		if err := indexConvertedFiles(cfg, log); err != nil {
			log.WithError(err).Error("gtid indexing failed")
		}
	}
}

// dumpTableJSON streams every record of the named open table's current
// .avro file to w as newline-delimited JSON, the debug surface of
// SPEC_FULL.md §6's -serve-json flag.
func dumpTableJSON(cfg config.Config, key string, w io.Writer) error {
	path := filepath.Join(cfg.AvroDir, key+".avro")
	c, err := avro.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(w)
	for {
		if err := c.NextBlock(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		for {
			rec, err := c.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
}

// indexConvertedFiles re-indexes every .avro file under cfg.AvroDir into
// the GTID index, per spec.md §4.J's "separate scan".
func indexConvertedFiles(cfg config.Config, log *logrus.Logger) error {
	idx, err := gtidindex.Open(cfg.GTIDIndexPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := os.ReadDir(cfg.AvroDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".avro" {
			continue
		}
		path := filepath.Join(cfg.AvroDir, e.Name())
		if err := idx.IndexFile(path); err != nil {
			log.WithError(err).WithField("file", path).Warn("failed to index avro file")
		}
	}
	return nil
}
