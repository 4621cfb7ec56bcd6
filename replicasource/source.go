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

// Package replicasource connects to a MySQL/MariaDB master as a replica
// and relays the binlog events it receives onto local relay files, using
// the same <stem>.<6-digit-sequence> naming convention the converter loop
// expects. It is the producer standing upstream of "walk binlog files",
// which spec.md treats as a given input.
package replicasource

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-vitess.v1/mysql"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
	"github.com/mariadb-corporation/avrorouter/convert"
)

// MasterConfig describes the replication master to connect to.
type MasterConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	// ServerID is the id this process presents to the master as its
	// replica server id.
	ServerID uint32
}

func (mc MasterConfig) connParams() *mysql.ConnParams {
	return &mysql.ConnParams{
		Host:  mc.Host,
		Port:  mc.Port,
		Uname: mc.User,
		Pass:  mc.Password,
	}
}

// binlogConn is the slice of *mysql.Conn's replica surface Source drives.
// Narrowing it to an interface keeps Run's control flow testable against a
// fake without a live master.
type binlogConn interface {
	SendBinlogDumpCommand(serverID uint32, startPos mysql.Position) error
	ReadBinlogEvent() (mysql.BinlogEvent, error)
	Close()
}

// connectFunc is swappable in tests.
var connectFunc = func(ctx context.Context, params *mysql.ConnParams) (binlogConn, error) {
	return mysql.Connect(ctx, params)
}

// Source pulls binlog events from a replication master and relays them,
// byte for byte (replication header included), onto local relay files.
type Source struct {
	master MasterConfig
	relay  *relayWriter
	log    *logrus.Logger
}

// New opens the initial relay file <dir>/<stem>.000001 and returns a
// Source ready to Run.
func New(master MasterConfig, relayDir, stem string, log *logrus.Logger) (*Source, error) {
	rw, err := newRelayWriter(relayDir, stem)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	return &Source{master: master, relay: rw, log: log}, nil
}

// Close closes the current relay file without closing any master
// connection (Run owns that).
func (s *Source) Close() error {
	return s.relay.Close()
}

// RelayPath returns the path of the relay file currently being written.
func (s *Source) RelayPath() string {
	return s.relay.Path()
}

// Run connects to the master and requests a GTID-based replication stream
// starting at startGTID ("" follows the master's current position —
// "gtid_auto" in spec.md §4.K terms), then relays every event it reads
// until ctx is cancelled, the connection drops, or relaying an event
// fails. It returns nil on a clean ctx cancellation.
func (s *Source) Run(ctx context.Context, startGTID string) error {
	conn, err := connectFunc(ctx, s.master.connParams())
	if err != nil {
		return cdcerr.IO.New(err)
	}
	defer conn.Close()

	pos, err := startPosition(startGTID)
	if err != nil {
		return err
	}
	if err := conn.SendBinlogDumpCommand(s.master.ServerID, pos); err != nil {
		return cdcerr.IO.New(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		event, err := conn.ReadBinlogEvent()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return cdcerr.IO.New(err)
		}

		if err := s.relayEvent(event); err != nil {
			return err
		}
	}
}

// relayEvent appends event's raw bytes to the current relay file. A
// ROTATE_EVENT is not appended: it closes the current relay file and
// opens the next sequence number instead, per spec.md §4.K / §4.I's
// shared file-rotation convention.
func (s *Source) relayEvent(event mysql.BinlogEvent) error {
	if event.IsRotate() {
		s.log.WithField("path", s.relay.Path()).Info("replica source rotating relay file")
		return s.relay.Rotate()
	}
	return s.relay.Append(event.Bytes())
}

// startPosition parses a MariaDB GTID start position. An empty string
// requests "gtid_auto": the master picks up wherever its current binlog
// position is, which go-vitess.v1/mysql represents as the zero Position.
func startPosition(startGTID string) (mysql.Position, error) {
	if startGTID == "" {
		return mysql.Position{}, nil
	}
	pos, err := mysql.ParsePosition("MariaDB", startGTID)
	if err != nil {
		return mysql.Position{}, cdcerr.Corruption.New(err)
	}
	return pos, nil
}

// NextRelayPath exposes the converter loop's rotation naming convention so
// callers that need to predict the next relay file name (e.g. to
// pre-register it with a downstream watcher) don't have to reimplement it.
func NextRelayPath(current string) (string, error) {
	return convert.NextBinlogPath(current)
}
