// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/pkg/errors"
)

// Read 按主键重新读取记录的大文本列。
// 驱动在普通查询中返回的大对象句柄不可复用，因此每个大文本列均通过独立的标量查询获取，
// 读取的值同时写入快照，不会被视为变化。
func (w *Writer) Read(ctx context.Context, rec *Record) error {
	if rec == nil || rec.meta == nil || rec.meta.Table != w.meta.Table {
		return errors.Errorf("xlob: record does not belong to %v", w.meta.Table)
	}
	key, ok := rec.keyPairs()
	if !ok {
		return errors.Errorf("xlob: primary key of %v is incomplete", w.meta.Table)
	}

	startTime := XTime.GetMicrosecond()
	defer func() { recordRead(XTime.GetMicrosecond() - startTime) }()

	for _, name := range w.meta.LargeText() {
		row, err := w.driver.Query(ctx, buildSelect(w.meta, w.driver.Dialect(), []string{name}, key))
		if err != nil {
			if !errors.Is(err, ErrNoRows) {
				XLog.Error("XLob.Writer.Read(%v): %v", w.meta.Table, describe(err))
			}
			return err
		}
		var value any
		if len(row) > 0 {
			if value, err = w.meta.Column(name).Cast(row[0]); err != nil {
				return err
			}
		}
		if value == nil {
			value = ""
		}
		rec.attrs[name] = value
		rec.setOld(name, value)
	}
	return nil
}

// Load 按主键加载记录的全部列，大文本列通过 Read 获取。
// 记录不存在时返回 false 和 nil。
func (w *Writer) Load(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.meta == nil || rec.meta.Table != w.meta.Table {
		return false, errors.Errorf("xlob: record does not belong to %v", w.meta.Table)
	}
	key, ok := rec.keyPairs()
	if !ok {
		return false, errors.Errorf("xlob: primary key of %v is incomplete", w.meta.Table)
	}

	var scalars []string
	for _, col := range w.meta.Columns {
		if col.Type != TypeClob {
			scalars = append(scalars, col.Name)
		}
	}
	row, err := w.driver.Query(ctx, buildSelect(w.meta, w.driver.Dialect(), scalars, key))
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return false, nil
		}
		XLog.Error("XLob.Writer.Load(%v): %v", w.meta.Table, describe(err))
		return false, err
	}

	values := make(map[string]any, len(w.meta.Columns))
	for i, name := range scalars {
		if i >= len(row) {
			break
		}
		value, err := w.meta.Column(name).Cast(row[i])
		if err != nil {
			return false, err
		}
		values[name] = value
	}
	for name, value := range values {
		rec.attrs[name] = value
	}
	rec.SetOldAttributes(values)

	if err := w.Read(ctx, rec); err != nil {
		if errors.Is(err, ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
