// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SqlDriver 是基于 database/sql 的驱动实现。
//
// database/sql 无法返回可写的大对象定位符，因此定位符是模拟的：
// 语句执行后将定位符关联至记录的主键，填充时在同一事务内执行
// UPDATE <table> SET <col> = ? WHERE <pk> = ?，并要求恰好影响一行。
type SqlDriver struct {
	db      *sqlx.DB
	dialect IDialect
}

// NewSqlDriver 创建驱动，dialect 为 nil 时根据 db 的驱动名称推断。
func NewSqlDriver(db *sqlx.DB, dialect IDialect) (*SqlDriver, error) {
	if db == nil {
		return nil, errors.New("xlob: nil database")
	}
	if dialect == nil {
		dialect = DialectOf(db.DriverName())
	}
	if dialect == nil {
		return nil, errors.Errorf("xlob: unsupported driver %v", db.DriverName())
	}
	if dialect.LocatorReturning() {
		return nil, errors.Errorf("xlob: dialect %v requires native locators", dialect.Name())
	}
	return &SqlDriver{db: db, dialect: dialect}, nil
}

// DB 返回底层的数据库连接池。
func (d *SqlDriver) DB() *sqlx.DB { return d.db }

func (d *SqlDriver) Dialect() IDialect { return d.dialect }

// Begin 从连接池中独占一个连接并开启事务。
func (d *SqlDriver) Begin(ctx context.Context) (ISession, error) {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &sqlSession{driver: d, conn: conn, tx: tx}, nil
}

// Query 执行单行查询，没有记录时返回 ErrNoRows。
func (d *SqlDriver) Query(ctx context.Context, query *Query) ([]any, error) {
	args := make([]any, 0, len(query.Where))
	for _, pair := range query.Where {
		args = append(args, pair.Value)
	}
	row, err := d.db.QueryRowxContext(ctx, d.db.Rebind(query.SQL), args...).SliceScan()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, err
	}
	return row, nil
}

type sqlSession struct {
	driver *SqlDriver
	conn   *sqlx.Conn
	tx     *sqlx.Tx
}

func (s *sqlSession) Prepare(ctx context.Context, stmt *Statement) (IStatement, error) {
	prepared, err := s.tx.PreparexContext(ctx, s.tx.Rebind(stmt.SQL))
	if err != nil {
		return nil, err
	}
	return &sqlStatement{
		session:  s,
		stmt:     stmt,
		prepared: prepared,
		binds:    make(map[string]any),
	}, nil
}

func (s *sqlSession) Commit() error { return s.tx.Commit() }

// Rollback 回滚事务，上下文取消时 database/sql 已自动回滚，视为成功。
func (s *sqlSession) Rollback() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *sqlSession) Release() error { return s.conn.Close() }

// sqlLocator 是模拟的定位符句柄，Key 为执行后确定的记录主键。
type sqlLocator struct {
	Key []Pair
}

type sqlStatement struct {
	session  *sqlSession
	stmt     *Statement
	prepared *sqlx.Stmt
	binds    map[string]any
	locators []*Locator
	keys     map[string]any
}

func (s *sqlStatement) BindScalar(name string, value any) error {
	s.binds[name] = value
	return nil
}

func (s *sqlStatement) BindLocatorOutput(name string, loc *Locator) error {
	if loc == nil || loc.Released() {
		return errors.Errorf("xlob: invalid locator for %v", name)
	}
	loc.Handle = &sqlLocator{}
	s.locators = append(s.locators, loc)
	return nil
}

// args 按占位符的出现顺序组织参数：SET/VALUES 中的普通列在前，主键条件在后。
func (s *sqlStatement) args() ([]any, error) {
	args := make([]any, 0, len(s.stmt.Scalars)+len(s.stmt.Where)+len(s.stmt.Returning))
	for _, pair := range s.stmt.Scalars {
		value, ok := s.binds[pair.Column]
		if !ok {
			return nil, errors.Errorf("xlob: %v is not bound", pair.Column)
		}
		args = append(args, value)
	}
	for _, pair := range s.stmt.Where {
		value, ok := s.binds[keyBind(pair.Column)]
		if !ok {
			return nil, errors.Errorf("xlob: %v is not bound", keyBind(pair.Column))
		}
		args = append(args, value)
	}
	return args, nil
}

func (s *sqlStatement) Execute(ctx context.Context) (int64, error) {
	args, err := s.args()
	if err != nil {
		return 0, err
	}

	var rows int64
	keys := make(map[string]any)
	returning := s.stmt.Returning
	switch {
	case len(returning) > 0 && s.session.driver.dialect.KeyReturn() == KeyReturnInto:
		dests := make([]any, 0, len(returning))
		for _, col := range returning {
			dest := outDest(col)
			dests = append(dests, dest)
			args = append(args, sql.Out{Dest: dest})
		}
		res, err := s.prepared.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		if rows, err = res.RowsAffected(); err != nil {
			return 0, err
		}
		for i, col := range returning {
			keys[col.Name] = reflect.ValueOf(dests[i]).Elem().Interface()
		}
	case len(returning) > 0 && s.session.driver.dialect.KeyReturn() == KeyReturnRow:
		values, err := s.prepared.QueryRowxContext(ctx, args...).SliceScan()
		if err != nil {
			return 0, err
		}
		rows = 1
		for i, col := range returning {
			if i < len(values) {
				keys[col.Name] = values[i]
			}
		}
	default:
		res, err := s.prepared.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		if rows, err = res.RowsAffected(); err != nil {
			return 0, err
		}
		if len(returning) > 0 {
			if err := s.resolveKeys(ctx, res, keys); err != nil {
				return 0, err
			}
		}
	}
	if len(keys) > 0 {
		s.keys = keys
	}

	key := s.rowKey()
	for _, loc := range s.locators {
		if handle, ok := loc.Handle.(*sqlLocator); ok {
			handle.Key = key
		}
	}
	return rows, nil
}

// resolveKeys 在同一事务内解析服务端生成的主键。
// LastInsertId 仅在唯一缺失的列为自增整型主键且不为 0 时直接使用；SQLite 的 LastInsertId 为 rowid，
// 按 rowid 查询主键；其余情况回退至按主键降序查询最新记录，该方式在并发插入时并不可靠。
func (s *sqlStatement) resolveKeys(ctx context.Context, res sql.Result, keys map[string]any) error {
	returning := s.stmt.Returning
	dialect := s.session.driver.dialect
	id, err := res.LastInsertId()
	if err != nil {
		id = 0
	}
	if id != 0 {
		if len(returning) == 1 && returning[0].Auto && returning[0].Type == TypeInt {
			keys[returning[0].Name] = id
			return nil
		}
		if dialect.KeyReturn() == KeyReturnRowID {
			qerr := s.queryKeys(ctx, buildRowID(s.stmt.Table, s.stmt.Key), []any{id}, keys)
			if qerr == nil {
				return nil
			}
			XLog.Warn("XLob.SqlDriver.Execute(%v): [%v] lookup by rowid: %v", s.stmt.Table, s.stmt.ID, qerr)
		}
	}

	XLog.Warn("XLob.SqlDriver.Execute(%v): [%v] generated key unresolved, fallback to the latest row.", s.stmt.Table, s.stmt.ID)
	if qerr := s.queryKeys(ctx, buildLatestOf(s.stmt.Table, s.stmt.Key, dialect), nil, keys); qerr != nil {
		if len(s.stmt.Lobs) > 0 {
			return errors.Wrap(qerr, "resolve generated key")
		}
		XLog.Warn("XLob.SqlDriver.Execute(%v): [%v] lookup latest row: %v", s.stmt.Table, s.stmt.ID, qerr)
	}
	return nil
}

// queryKeys 在事务内查询主键，文本值统一转换为 string。
func (s *sqlStatement) queryKeys(ctx context.Context, query *Query, args []any, keys map[string]any) error {
	row, err := s.session.tx.QueryRowxContext(ctx, s.session.tx.Rebind(query.SQL), args...).SliceScan()
	if err != nil {
		return err
	}
	for i, name := range query.Columns {
		if i >= len(row) {
			break
		}
		if b, ok := row[i].([]byte); ok {
			keys[name] = string(b)
		} else {
			keys[name] = row[i]
		}
	}
	return nil
}

// rowKey 返回执行后记录的主键，更新主键列时以新值为准，主键不完整时返回 nil。
func (s *sqlStatement) rowKey() []Pair {
	values := make(map[string]any)
	for _, pair := range s.stmt.Where {
		values[pair.Column] = pair.Value
	}
	for _, pair := range s.stmt.Scalars {
		if value, ok := s.binds[pair.Column]; ok {
			values[pair.Column] = value
		}
	}
	for name, value := range s.keys {
		values[name] = value
	}
	key := make([]Pair, 0, len(s.stmt.Key))
	for _, name := range s.stmt.Key {
		value := values[name]
		if value == nil {
			return nil
		}
		key = append(key, Pair{Column: name, Value: value})
	}
	return key
}

// WriteLocator 在同一事务内按主键填充大文本。
// 空文本与执行时写入的占位值相同，无需再次写入。
func (s *sqlStatement) WriteLocator(ctx context.Context, loc *Locator, value string) error {
	if loc == nil || loc.Released() {
		return errors.New("xlob: locator was released")
	}
	handle, ok := loc.Handle.(*sqlLocator)
	if !ok || handle == nil {
		return errors.Errorf("xlob: locator of %v is not bound", loc.Column)
	}
	if len(handle.Key) == 0 {
		return errors.Errorf("xlob: locator of %v has no row key", loc.Column)
	}
	if value == "" {
		return nil
	}

	dialect := s.session.driver.dialect
	query := s.session.tx.Rebind(buildLocatorWrite(s.stmt.Table, dialect, loc.Column, handle.Key))
	args := make([]any, 0, len(handle.Key)+1)
	args = append(args, dialect.LobValue(value))
	for _, pair := range handle.Key {
		args = append(args, pair.Value)
	}
	res, err := s.session.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.Errorf("xlob: locator of %v matched %d rows", loc.Column, n)
	}
	return nil
}

func (s *sqlStatement) Keys() map[string]any { return s.keys }

func (s *sqlStatement) Release() error { return s.prepared.Close() }

// outDest 根据列类型创建 RETURNING ... INTO 的输出变量。
func outDest(col *Column) any {
	switch col.Type {
	case TypeInt:
		return new(int64)
	case TypeFloat:
		return new(float64)
	case TypeBool:
		return new(bool)
	case TypeTime:
		return new(time.Time)
	default:
		return new(string)
	}
}
