/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package czar

import (
	"context"
	"fmt"
	"sync"

	"skyserv.io/skyserv/go/sky/merger"
)

// Message severities written to a query's message table.
const (
	SeverityInfo  = "INFO"
	SeverityError = "ERROR"
)

type message struct {
	severity string
	code     int
	text     string
}

// messageTable is the per-query status channel back to the client shim.
// It is created write-locked at submit time; the shim blocks reading it
// until complete unlocks, which signals that the result table is ready.
type messageTable struct {
	db       merger.Execer
	database string
	name     string
	session  uint64

	mu     sync.Mutex
	queued []message
}

func newMessageTable(db merger.Execer, database, name string, session uint64) *messageTable {
	return &messageTable{db: db, database: database, name: name, session: session}
}

func (mt *messageTable) qualified() string {
	return fmt.Sprintf("`%s`.`%s`", mt.database, mt.name)
}

// create builds the table and takes the write lock the shim waits on.
func (mt *messageTable) create(ctx context.Context) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s "+
		"(session BIGINT, severity CHAR(8), code INT, message TEXT, "+
		"ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP) ENGINE=MyISAM", mt.qualified())
	if _, err := mt.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	_, err := mt.db.ExecContext(ctx, fmt.Sprintf("LOCK TABLES %s WRITE", mt.qualified()))
	return err
}

// add queues a message; nothing is written until complete.
func (mt *messageTable) add(severity string, code int, text string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.queued = append(mt.queued, message{severity: severity, code: code, text: text})
}

// complete writes the queued messages and releases the write lock.
func (mt *messageTable) complete(ctx context.Context) error {
	mt.mu.Lock()
	queued := mt.queued
	mt.queued = nil
	mt.mu.Unlock()

	for _, msg := range queued {
		stmt := fmt.Sprintf("INSERT INTO %s (session, severity, code, message) VALUES (?, ?, ?, ?)",
			mt.qualified())
		if _, err := mt.db.ExecContext(ctx, stmt, mt.session, msg.severity, msg.code, msg.text); err != nil {
			return err
		}
	}
	_, err := mt.db.ExecContext(ctx, "UNLOCK TABLES")
	return err
}
