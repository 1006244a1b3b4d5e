// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// memDriver 是内存中的驱动，模拟原生定位符：执行后定位符指向事务内的行，填充后在提交时生效。
type memDriver struct {
	mu      sync.Mutex
	dialect IDialect
	meta    *Meta
	rows    map[string]map[string]any
	seq     int64

	nativeKeys bool           // 是否在执行时直接返回生成的主键
	fixedKeys  map[string]any // 执行时返回的固定主键，模拟返回无效值的驱动

	failBegin    error
	failPrepare  error
	failExecute  error
	failLob      error
	failCommit   error
	failRollback error

	sqls      []string
	queries   []string
	sessions  int
	releases  int
	commits   int
	rollbacks int
	stmts     []*memStatement
	locators  []*Locator
}

func newMemDriver(meta *Meta) *memDriver {
	return &memDriver{dialect: OCI, meta: meta, rows: make(map[string]map[string]any)}
}

func (d *memDriver) Dialect() IDialect { return d.dialect }

func (d *memDriver) Begin(ctx context.Context) (ISession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failBegin != nil {
		return nil, d.failBegin
	}
	d.sessions++
	work := make(map[string]map[string]any, len(d.rows))
	for k, row := range d.rows {
		work[k] = copyAttrs(row)
	}
	return &memSession{driver: d, work: work, seq: d.seq}, nil
}

func (d *memDriver) Query(ctx context.Context, query *Query) ([]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, query.SQL)

	var found map[string]any
	if len(query.OrderDesc) > 0 {
		for _, row := range d.rows {
			if found == nil || laterRow(row, found, query.OrderDesc) {
				found = row
			}
		}
	} else {
		for _, row := range d.rows {
			if matchRow(row, query.Where) {
				found = row
				break
			}
		}
	}
	if found == nil {
		return nil, ErrNoRows
	}
	values := make([]any, 0, len(query.Columns))
	for _, name := range query.Columns {
		values = append(values, found[name])
	}
	return values, nil
}

// row 返回已提交的记录。
func (d *memDriver) row(key ...any) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows[rowKey(key...)]
}

func (d *memDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

type memSession struct {
	driver *memDriver
	work   map[string]map[string]any
	seq    int64
	done   bool
}

func (s *memSession) Prepare(ctx context.Context, stmt *Statement) (IStatement, error) {
	if s.driver.failPrepare != nil {
		return nil, s.driver.failPrepare
	}
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	ms := &memStatement{session: s, stmt: stmt, binds: make(map[string]any), outs: make(map[string]*Locator)}
	s.driver.stmts = append(s.driver.stmts, ms)
	return ms, nil
}

func (s *memSession) Commit() error {
	d := s.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCommit != nil {
		return d.failCommit
	}
	d.rows = s.work
	d.seq = s.seq
	d.commits++
	s.done = true
	return nil
}

func (s *memSession) Rollback() error {
	d := s.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRollback != nil {
		return d.failRollback
	}
	d.rollbacks++
	s.work = nil
	s.done = true
	return nil
}

func (s *memSession) Release() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.driver.releases++
	return nil
}

type memStatement struct {
	session  *memSession
	stmt     *Statement
	binds    map[string]any
	outs     map[string]*Locator
	keys     map[string]any
	released bool
}

func (s *memStatement) BindScalar(name string, value any) error {
	s.binds[name] = value
	return nil
}

func (s *memStatement) BindLocatorOutput(name string, loc *Locator) error {
	s.outs[name] = loc
	s.session.driver.mu.Lock()
	s.session.driver.locators = append(s.session.driver.locators, loc)
	s.session.driver.mu.Unlock()
	return nil
}

func (s *memStatement) Execute(ctx context.Context) (int64, error) {
	d := s.session.driver
	if d.failExecute != nil {
		return 0, d.failExecute
	}
	d.mu.Lock()
	d.sqls = append(d.sqls, s.stmt.SQL)
	d.mu.Unlock()

	work := s.session.work
	var row map[string]any
	switch s.stmt.Mode {
	case ModeInsert:
		row = make(map[string]any)
		for _, pair := range s.stmt.Scalars {
			row[pair.Column] = s.binds[pair.Column]
		}
		for _, name := range s.stmt.Lobs {
			row[name] = ""
		}
		for _, name := range s.stmt.Key {
			if row[name] == nil {
				s.session.seq++
				row[name] = s.session.seq
				if d.nativeKeys {
					if s.keys == nil {
						s.keys = make(map[string]any)
					}
					s.keys[name] = s.session.seq
				}
			}
		}
		key := keyOfRow(row, s.stmt.Key)
		if _, ok := work[key]; ok {
			return 0, errors.Errorf("unique constraint violated: %v", key)
		}
		work[key] = row
	case ModeUpdate:
		where := make([]Pair, 0, len(s.stmt.Where))
		for _, pair := range s.stmt.Where {
			where = append(where, Pair{Column: pair.Column, Value: s.binds[keyBind(pair.Column)]})
		}
		var old string
		for k, r := range work {
			if matchRow(r, where) {
				row, old = r, k
				break
			}
		}
		if row == nil {
			return 0, nil
		}
		for _, pair := range s.stmt.Scalars {
			row[pair.Column] = s.binds[pair.Column]
		}
		for _, name := range s.stmt.Lobs {
			row[name] = ""
		}
		delete(work, old)
		work[keyOfRow(row, s.stmt.Key)] = row
	}
	for _, loc := range s.outs {
		loc.Handle = row
	}
	return 1, nil
}

func (s *memStatement) WriteLocator(ctx context.Context, loc *Locator, value string) error {
	if s.session.driver.failLob != nil {
		return s.session.driver.failLob
	}
	if loc.Released() {
		return errors.New("locator released")
	}
	row, ok := loc.Handle.(map[string]any)
	if !ok {
		return errors.New("locator not bound")
	}
	row[loc.Column] = value
	return nil
}

func (s *memStatement) Keys() map[string]any {
	if s.session.driver.fixedKeys != nil {
		return s.session.driver.fixedKeys
	}
	return s.keys
}

func (s *memStatement) Release() error {
	s.released = true
	return nil
}

func matchRow(row map[string]any, where []Pair) bool {
	for _, pair := range where {
		if fmt.Sprint(row[pair.Column]) != fmt.Sprint(pair.Value) {
			return false
		}
	}
	return true
}

func keyOfRow(row map[string]any, names []string) string {
	values := make([]any, 0, len(names))
	for _, name := range names {
		values = append(values, row[name])
	}
	return rowKey(values...)
}

func rowKey(values ...any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "|")
}

// laterRow 判断 a 是否按 names 降序排在 b 之前。
func laterRow(a, b map[string]any, names []string) bool {
	for _, name := range names {
		if x, y := toInt(a[name]), toInt(b[name]); x != y {
			return x > y
		}
	}
	return false
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
