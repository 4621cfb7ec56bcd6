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

// Package ddl tracks the column-name roster of every table seen in the
// DDL stream, well enough to label table-map column-type vectors with
// names without parsing arbitrary SQL.
package ddl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mariadb-corporation/avrorouter/cdcerr"
)

// TableCreate is the tracked state for one table, per spec.md §4.F/§3.
type TableCreate struct {
	Database    string
	Table       string
	ColumnNames []string
	Version     uint32
	WasUsed     bool
	Definition  string
	GTID        string
}

// QualifiedName returns "database.table", the tracker's map key.
func (tc *TableCreate) QualifiedName() string {
	return tc.Database + "." + tc.Table
}

// Tracker holds one TableCreate per qualified table name. It is not
// internally synchronized; per spec.md §5 the converter instance's
// single RWMutex guards this alongside the table-map cache.
type Tracker struct {
	tables map[string]*TableCreate
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tables: make(map[string]*TableCreate)}
}

// Lookup returns the tracked state for "database.table".
func (t *Tracker) Lookup(database, table string) (*TableCreate, bool) {
	tc, ok := t.tables[database+"."+table]
	return tc, ok
}

var createTableRe = regexp.MustCompile(`(?is)create\s+table\s+(?:if\s+not\s+exists\s+)?` +
	"([`\"]?[A-Za-z0-9_]+[`\"]?(?:\\.[`\"]?[A-Za-z0-9_]+[`\"]?)?)")

// ApplyCreate parses a CREATE TABLE statement per spec.md §4.F step 1-2
// and installs (or replaces) the tracked roster for its table. database
// is the statement's connection default schema, used when the statement
// does not qualify the table name itself.
func (t *Tracker) ApplyCreate(database, stmt, gtid string) (*TableCreate, error) {
	loc := createTableRe.FindStringSubmatchIndex(stmt)
	if loc == nil {
		return nil, cdcerr.Schema.New("CREATE TABLE statement not recognized")
	}
	qualified := stmt[loc[2]:loc[3]]
	db, table := splitQualified(database, qualified)

	open := strings.IndexByte(stmt, '(')
	if open < 0 {
		return nil, cdcerr.Schema.New("CREATE TABLE missing column list")
	}
	close := matchingParen(stmt, open)
	if close < 0 {
		return nil, cdcerr.Schema.New("CREATE TABLE unbalanced parentheses")
	}

	columns := splitTopLevel(stmt[open+1 : close])
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		name := firstIdentifier(col)
		if name == "" || isTableConstraint(col) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, cdcerr.Schema.New("CREATE TABLE yielded no columns")
	}

	tc := &TableCreate{
		Database:    db,
		Table:       table,
		ColumnNames: names,
		Version:     1,
		Definition:  stmt,
		GTID:        gtid,
	}
	t.tables[tc.QualifiedName()] = tc
	return tc, nil
}

var alterTableRe = regexp.MustCompile(`(?is)alter\s+table\s+([` + "`\"" + `]?[A-Za-z0-9_]+[` + "`\"" + `]?(?:\.[` + "`\"" + `]?[A-Za-z0-9_]+[` + "`\"" + `]?)?)\s*(.*)$`)

var clauseRe = regexp.MustCompile(`(?i)(add|drop|change)\s+column\s+` +
	"([`\"]?[A-Za-z0-9_]+[`\"]?)(?:\\s+([`\"]?[A-Za-z0-9_]+[`\"]?))?")

// ApplyAlter parses an ALTER TABLE statement per spec.md §4.F and updates
// the matching tracked roster, applying the version-bump rule.
func (t *Tracker) ApplyAlter(database, stmt, gtid string) (*TableCreate, error) {
	m := alterTableRe.FindStringSubmatch(stmt)
	if m == nil {
		return nil, cdcerr.Schema.New("ALTER TABLE statement not recognized")
	}
	db, table := splitQualified(database, m[1])
	tc, ok := t.Lookup(db, table)
	if !ok {
		return nil, cdcerr.Schema.New(fmt.Sprintf("ALTER TABLE on untracked table %s.%s", db, table))
	}

	changed := false
	for _, clause := range clauseRe.FindAllStringSubmatch(m[2], -1) {
		verb := strings.ToLower(clause[1])
		first := unquote(clause[2])
		second := unquote(clause[3])
		switch verb {
		case "add":
			tc.ColumnNames = append(tc.ColumnNames, first)
			changed = true
		case "drop":
			if !dropColumn(tc, first) {
				return nil, cdcerr.Schema.New(fmt.Sprintf("DROP COLUMN %s: no such column", first))
			}
			changed = true
		case "change":
			if second == "" {
				return nil, cdcerr.Schema.New("CHANGE COLUMN missing new name")
			}
			if !renameLastColumn(tc, second) {
				return nil, cdcerr.Schema.New("CHANGE COLUMN on table with no columns")
			}
			changed = true
		}
	}
	if !changed {
		return nil, cdcerr.Schema.New("ALTER TABLE had no recognized column clauses")
	}

	tc.GTID = gtid
	if tc.WasUsed {
		tc.Version++
		tc.WasUsed = false
	}
	return tc, nil
}

// MarkUsed records that a record has been written under tc's current
// version, per spec.md §4.F's version-bump precondition.
func (tc *TableCreate) MarkUsed() {
	tc.WasUsed = true
}

// dropColumn removes name wherever it occurs in tc's roster (the
// corrected, name-based behavior per spec.md §9 — see DESIGN.md).
func dropColumn(tc *TableCreate, name string) bool {
	for i, c := range tc.ColumnNames {
		if strings.EqualFold(c, name) {
			tc.ColumnNames = append(tc.ColumnNames[:i], tc.ColumnNames[i+1:]...)
			return true
		}
	}
	return false
}

// renameLastColumn implements CHANGE COLUMN's documented simplification:
// rename the most recently added column, per spec.md §4.F.
func renameLastColumn(tc *TableCreate, newName string) bool {
	if len(tc.ColumnNames) == 0 {
		return false
	}
	tc.ColumnNames[len(tc.ColumnNames)-1] = newName
	return true
}

func splitQualified(defaultDB, qualified string) (string, string) {
	parts := strings.SplitN(qualified, ".", 2)
	if len(parts) == 2 {
		return unquote(parts[0]), unquote(parts[1])
	}
	return defaultDB, unquote(parts[0])
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, "`\"")
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on commas that are not nested inside a deeper
// pair of parentheses, per spec.md §4.F step 2.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

var identifierRe = regexp.MustCompile("^[`\"]?([A-Za-z0-9_]+)[`\"]?")

// firstIdentifier extracts a column group's leading identifier, stripped
// of quotes, or "" if the group does not start with one. A table-level
// constraint (PRIMARY KEY, etc.) yields its leading keyword here;
// isTableConstraint is what filters those out.
func firstIdentifier(colDef string) string {
	trimmed := strings.TrimSpace(colDef)
	m := identifierRe.FindStringSubmatch(trimmed)
	if m == nil {
		return ""
	}
	return m[1]
}

var constraintKeywords = []string{"primary", "unique", "key", "constraint", "foreign", "index", "check"}

func isTableConstraint(colDef string) bool {
	first := strings.ToLower(strings.TrimSpace(colDef))
	for _, kw := range constraintKeywords {
		if strings.HasPrefix(first, kw) {
			return true
		}
	}
	return false
}

// IsCreateTable reports whether stmt looks like a CREATE TABLE statement.
func IsCreateTable(stmt string) bool {
	return createTableRe.MatchString(stmt)
}

// IsAlterTable reports whether stmt looks like an ALTER TABLE statement.
func IsAlterTable(stmt string) bool {
	return alterTableRe.MatchString(stmt)
}
