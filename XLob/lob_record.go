// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"bytes"
	"reflect"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
)

// Record 是一条待持久化的逻辑记录。
// attrs 保存当前的列值，old 保存最近一次加载或写入后的快照，old 为 nil 表示新记录。
type Record struct {
	meta  *Meta
	attrs map[string]any
	old   map[string]any
}

// NewRecord 创建一条新记录。
func NewRecord(meta *Meta) *Record {
	return &Record{meta: meta, attrs: make(map[string]any)}
}

// Meta 返回记录的写入配置。
func (r *Record) Meta() *Meta { return r.meta }

// Get 获取列值。
func (r *Record) Get(name string) any { return r.attrs[name] }

// Has 判断列值是否已被设置。
func (r *Record) Has(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

// Set 设置列值，未在配置中声明的列会被忽略。
func (r *Record) Set(name string, value any) *Record {
	if r.meta.Column(name) == nil {
		XLog.Error("XLob.Record.Set(%v): unknown column %v.", r.meta.Table, name)
		return r
	}
	r.attrs[name] = value
	return r
}

// Attributes 返回当前列值的拷贝。
func (r *Record) Attributes() map[string]any { return copyAttrs(r.attrs) }

// OldAttributes 返回快照的拷贝，新记录返回 nil。
func (r *Record) OldAttributes() map[string]any {
	if r.old == nil {
		return nil
	}
	return copyAttrs(r.old)
}

// SetOldAttributes 替换快照，传入 nil 会将记录标记为新记录。
func (r *Record) SetOldAttributes(values map[string]any) {
	if values == nil {
		r.old = nil
		return
	}
	r.old = copyAttrs(values)
}

// IsNewRecord 判断记录是否尚未持久化。
func (r *Record) IsNewRecord() bool { return r.old == nil }

// Dirty 返回自上次加载以来发生变化的列。
// names 为可选的列名过滤，不指定时检查所有列。
func (r *Record) Dirty(names ...string) map[string]any {
	dirty := make(map[string]any)
	for _, pair := range r.dirtyPairs(names...) {
		dirty[pair.Column] = pair.Value
	}
	return dirty
}

// dirtyPairs 按配置中的列顺序返回变化的列，保证生成的 SQL 稳定。
func (r *Record) dirtyPairs(names ...string) []Pair {
	var filter map[string]struct{}
	if len(names) > 0 {
		filter = make(map[string]struct{}, len(names))
		for _, name := range names {
			filter[name] = struct{}{}
		}
	}
	var pairs []Pair
	for _, col := range r.meta.Columns {
		if filter != nil {
			if _, ok := filter[col.Name]; !ok {
				continue
			}
		}
		value, ok := r.attrs[col.Name]
		if !ok {
			continue
		}
		if r.old != nil {
			if prev, exist := r.old[col.Name]; exist && sameValue(prev, value) {
				continue
			}
		}
		pairs = append(pairs, Pair{Column: col.Name, Value: value})
	}
	return pairs
}

// keyPairs 返回用于定位记录的主键条件，优先使用快照中的值。
// 任一主键值缺失时 ok 为 false。
func (r *Record) keyPairs() (pairs []Pair, ok bool) {
	for _, name := range r.meta.PrimaryKey() {
		var value any
		if r.old != nil {
			value = r.old[name]
		}
		if value == nil {
			value = r.attrs[name]
		}
		if value == nil {
			return nil, false
		}
		pairs = append(pairs, Pair{Column: name, Value: value})
	}
	return pairs, true
}

// setOld 更新单列的快照。
func (r *Record) setOld(name string, value any) {
	if r.old == nil {
		r.old = make(map[string]any)
	}
	r.old[name] = value
}

func copyAttrs(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// sameValue 比较两个列值是否相同，类型不同视为不同。
func sameValue(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return reflect.DeepEqual(a, b)
}
