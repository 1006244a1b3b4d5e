// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"
	"fmt"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/illumitacit/gostd/quit"
	"github.com/pkg/errors"
)

// Writer 负责写入包含大文本列的记录。
//
// 每次写入独占一个连接和一个事务：执行语句后再填充定位符，
// 二者均成功才提交，否则回滚，不会留下只有 EMPTY_CLOB() 占位的记录。
// Writer 本身是无状态的，可以并发使用，同一主键的并发写入以最后提交者为准。
type Writer struct {
	driver IDriver
	meta   *Meta
}

// NewWriter 创建写入器，meta 必须声明主键且不能包含二进制大对象列。
func NewWriter(driver IDriver, meta *Meta) (*Writer, error) {
	if driver == nil {
		return nil, errors.New("xlob: nil driver")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if driver.Dialect() == nil {
		return nil, errors.Errorf("xlob: driver of %v has no dialect", meta.Table)
	}
	return &Writer{driver: driver, meta: meta}, nil
}

// Meta 返回写入配置。
func (w *Writer) Meta() *Meta { return w.meta }

// Driver 返回驱动。
func (w *Writer) Driver() IDriver { return w.driver }

// Save 根据记录是否为新记录选择插入或更新。
func (w *Writer) Save(ctx context.Context, rec *Record, names ...string) (Result, error) {
	if rec != nil && rec.IsNewRecord() {
		return w.Write(ctx, rec, ModeInsert, names...)
	}
	return w.Write(ctx, rec, ModeUpdate, names...)
}

// Insert 插入记录。
func (w *Writer) Insert(ctx context.Context, rec *Record, names ...string) (Result, error) {
	return w.Write(ctx, rec, ModeInsert, names...)
}

// Update 更新记录，没有变化的列时不执行任何语句并返回 0 行。
func (w *Writer) Update(ctx context.Context, rec *Record, names ...string) (Result, error) {
	return w.Write(ctx, rec, ModeUpdate, names...)
}

// Write 写入记录。
// names 为可选的列名过滤，仅写入其中发生变化的列。
// 预期内的失败通过 Result 返回，error 仅在发生致命的驱动故障时不为 nil（IsFatal 为 true）。
func (w *Writer) Write(ctx context.Context, rec *Record, mode Mode, names ...string) (result Result, err error) {
	waiter := quit.GetWaiter()
	waiter.Add(1)
	defer waiter.Done()

	startTime := XTime.GetMicrosecond()
	var lobBytes int
	defer func() {
		recordWrite(mode, XTime.GetMicrosecond()-startTime, result, err, lobBytes)
	}()

	if rec == nil || rec.meta == nil || rec.meta.Table != w.meta.Table {
		return failure(ValidationError, errors.Errorf("xlob: record does not belong to %v", w.meta.Table)), nil
	}
	insert := mode == ModeInsert
	if !insert && mode != ModeUpdate {
		return failure(ValidationError, errors.Errorf("xlob: unknown write mode %v", mode)), nil
	}

	for _, hook := range w.meta.BeforeWrite {
		if herr := hook(rec, insert); herr != nil {
			XLog.Info("XLob.Writer.%v(%v): record not saved due to validation error: %v", mode, w.meta.Table, herr)
			return failure(ValidationError, herr), nil
		}
	}

	dirty := rec.dirtyPairs(names...)
	if len(dirty) == 0 {
		if insert {
			return failure(ValidationError, errors.Errorf("xlob: nothing to insert into %v", w.meta.Table)), nil
		}
		changed := map[string]any{}
		w.afterWrite(rec, insert, changed)
		return Result{Success: true, Changed: changed}, nil
	}

	var where []Pair
	var returning []*Column
	if insert {
		returning = w.missingKeys(dirty)
	} else {
		var ok bool
		if where, ok = rec.keyPairs(); !ok {
			return failure(ValidationError, errors.Errorf("xlob: primary key of %v is incomplete", w.meta.Table)), nil
		}
	}

	stmt, berr := buildStatement(w.meta, w.driver.Dialect(), mode, dirty, where, returning)
	if berr != nil {
		return failure(ValidationError, berr), nil
	}

	rows, keys, reason, cause, ferr := w.execute(ctx, stmt, rec)
	if ferr != nil {
		XLog.Critical("XLob.Writer.%v(%v): [%v] %v", mode, w.meta.Table, stmt.ID, ferr)
		return failure(reason, ferr), ferr
	}
	if reason != ReasonNone {
		XLog.Error("XLob.Writer.%v(%v): [%v] %v rolled back: %v", mode, w.meta.Table, stmt.ID, reason, describe(cause))
		return failure(reason, cause), nil
	}
	for _, name := range stmt.Lobs {
		lobBytes += len(lobString(rec.attrs[name]))
	}

	result = Result{Success: true, RowsAffected: rows}
	if insert {
		result.Changed, result.Err = w.afterInsert(ctx, rec, dirty, keys)
	} else {
		result.Changed = w.afterUpdate(rec, dirty)
	}
	w.afterWrite(rec, insert, result.Changed)
	return result, nil
}

// execute 在一个事务内完成预编译、绑定、执行、填充定位符和提交，所有出口均会释放语句和定位符。
func (w *Writer) execute(ctx context.Context, stmt *Statement, rec *Record) (rows int64, keys map[string]any, reason Reason, cause error, ferr error) {
	session, err := w.driver.Begin(ctx)
	if err != nil {
		return 0, nil, ExecutionError, err, fatal("begin", err)
	}
	defer func() {
		if rerr := session.Release(); rerr != nil {
			XLog.Warn("XLob.Writer.%v(%v): [%v] release session: %v", stmt.Mode, stmt.Table, stmt.ID, rerr)
		}
	}()

	rollback := func(r Reason, c error) (int64, map[string]any, Reason, error, error) {
		if rerr := session.Rollback(); rerr != nil {
			return 0, nil, r, c, fatal("rollback", errors.Wrapf(rerr, "after %v", describe(c)))
		}
		return 0, nil, r, c, nil
	}

	prepared, err := session.Prepare(ctx, stmt)
	if err != nil {
		return rollback(ExecutionError, errors.Wrap(err, "prepare"))
	}
	locators := make([]*Locator, 0, len(stmt.Lobs))
	defer func() {
		for _, loc := range locators {
			loc.Release()
		}
		if rerr := prepared.Release(); rerr != nil {
			XLog.Warn("XLob.Writer.%v(%v): [%v] release statement: %v", stmt.Mode, stmt.Table, stmt.ID, rerr)
		}
	}()

	for _, name := range stmt.Lobs {
		loc := newLocator(name)
		locators = append(locators, loc)
		if err := prepared.BindLocatorOutput(name, loc); err != nil {
			return rollback(ExecutionError, errors.Wrapf(err, "bind locator %v", name))
		}
	}
	for _, pair := range stmt.Scalars {
		if err := prepared.BindScalar(pair.Column, pair.Value); err != nil {
			return rollback(ExecutionError, errors.Wrapf(err, "bind %v", pair.Column))
		}
	}
	for _, pair := range stmt.Where {
		if err := prepared.BindScalar(keyBind(pair.Column), pair.Value); err != nil {
			return rollback(ExecutionError, errors.Wrapf(err, "bind %v", keyBind(pair.Column)))
		}
	}

	rows, err = prepared.Execute(ctx)
	if err != nil {
		return rollback(ExecutionError, errors.Wrap(err, "execute"))
	}

	for _, loc := range locators {
		if err := prepared.WriteLocator(ctx, loc, lobString(rec.attrs[loc.Column])); err != nil {
			return rollback(LobWriteError, errors.Wrapf(err, "write locator %v", loc.Column))
		}
	}

	if err := session.Commit(); err != nil {
		if rerr := session.Rollback(); rerr != nil {
			XLog.Warn("XLob.Writer.%v(%v): [%v] rollback after failed commit: %v", stmt.Mode, stmt.Table, stmt.ID, rerr)
		}
		return 0, nil, ExecutionError, err, fatal("commit", err)
	}
	return rows, prepared.Keys(), ReasonNone, nil, nil
}

// missingKeys 返回插入时值未知（由服务端生成）的主键列。
func (w *Writer) missingKeys(dirty []Pair) []*Column {
	known := make(map[string]bool, len(dirty))
	for _, pair := range dirty {
		if pair.Value != nil {
			known[pair.Column] = true
		}
	}
	var missing []*Column
	for _, name := range w.meta.PrimaryKey() {
		if !known[name] {
			missing = append(missing, w.meta.Column(name))
		}
	}
	return missing
}

// afterUpdate 记录变更前的值并将记录标记为未修改。
func (w *Writer) afterUpdate(rec *Record, dirty []Pair) map[string]any {
	changed := make(map[string]any, len(dirty))
	for _, pair := range dirty {
		var prev any
		if rec.old != nil {
			prev = rec.old[pair.Column]
		}
		changed[pair.Column] = prev
		rec.setOld(pair.Column, pair.Value)
	}
	return changed
}

// afterInsert 解析服务端生成的主键并刷新快照，变更前的值均视为未设置。
// 优先使用驱动直接返回的主键，否则回退至按主键降序查询最新记录，该方式在并发插入时并不可靠。
func (w *Writer) afterInsert(ctx context.Context, rec *Record, dirty []Pair, keys map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(dirty))
	for _, pair := range dirty {
		values[pair.Column] = pair.Value
	}

	var kerr error
	missing := w.missingKeys(dirty)
	if len(missing) > 0 {
		resolved := make(map[string]any, len(missing))
		for _, col := range missing {
			if v, ok := keys[col.Name]; ok && generatedKey(col, v) {
				resolved[col.Name] = v
			}
		}
		if len(resolved) < len(missing) {
			XLog.Warn("XLob.Writer.Insert(%v): driver returned no primary key, fallback to the latest row.", w.meta.Table)
			latest, err := w.latestKey(ctx)
			if err != nil {
				kerr = errors.Wrap(ErrKeyUnresolved, err.Error())
				XLog.Error("XLob.Writer.Insert(%v): %v", w.meta.Table, kerr)
			} else {
				for _, col := range missing {
					if _, ok := resolved[col.Name]; !ok {
						resolved[col.Name] = latest[col.Name]
					}
				}
			}
		}
		for _, col := range missing {
			raw, ok := resolved[col.Name]
			if !ok {
				continue
			}
			value, err := col.Cast(raw)
			if err != nil {
				kerr = errors.Wrapf(ErrKeyUnresolved, "cast %v: %v", col.Name, err)
				XLog.Error("XLob.Writer.Insert(%v): %v", w.meta.Table, kerr)
				continue
			}
			rec.attrs[col.Name] = value
			values[col.Name] = value
		}
	}

	changed := make(map[string]any, len(values))
	for name := range values {
		changed[name] = nil
	}
	rec.SetOldAttributes(values)
	return changed, kerr
}

// generatedKey 判断驱动返回的值是否为服务端生成的主键，自增整型主键的 0 视为未生成。
func generatedKey(col *Column, value any) bool {
	if value == nil {
		return false
	}
	if col.Auto && col.Type == TypeInt {
		if n, err := col.Cast(value); err != nil || n == int64(0) {
			return false
		}
	}
	return true
}

// latestKey 查询主键降序的第一条记录。
func (w *Writer) latestKey(ctx context.Context) (map[string]any, error) {
	query := buildLatest(w.meta, w.driver.Dialect())
	row, err := w.driver.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]any, len(query.Columns))
	for i, name := range query.Columns {
		if i < len(row) {
			keys[name] = row[i]
		}
	}
	return keys, nil
}

func (w *Writer) afterWrite(rec *Record, insert bool, changed map[string]any) {
	for _, hook := range w.meta.AfterWrite {
		hook(rec, insert, changed)
	}
}

func failure(reason Reason, err error) Result {
	return Result{Reason: reason, Err: err}
}

// lobString 将列值转换为写入定位符的文本，nil 写入空文本。
func lobString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
