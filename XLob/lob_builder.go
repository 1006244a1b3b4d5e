// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// keyBindPrefix 是 WHERE 子句中主键占位符的前缀，避免与 SET 子句中同名的列冲突。
const keyBindPrefix = "pk_"

// keyBind 返回主键条件的占位符名称。
func keyBind(column string) string { return keyBindPrefix + column }

// buildStatement 根据变化的列生成写入语句。
// 大文本列以占位值写入并在 RETURNING ... INTO 中返回定位符，其余列绑定普通值。
func buildStatement(meta *Meta, dialect IDialect, mode Mode, dirty []Pair, where []Pair, returning []*Column) (*Statement, error) {
	stmt := &Statement{
		ID:    uuid.NewString(),
		Mode:  mode,
		Table: meta.Table,
		Key:   meta.PrimaryKey(),
		Where: where,
	}
	for _, pair := range dirty {
		if meta.IsLargeText(pair.Column) {
			stmt.Lobs = append(stmt.Lobs, pair.Column)
		} else {
			stmt.Scalars = append(stmt.Scalars, pair)
		}
	}

	var sb strings.Builder
	switch mode {
	case ModeInsert:
		if len(dirty) == 0 {
			return nil, errors.Errorf("xlob: nothing to insert into %v", meta.Table)
		}
		names := make([]string, 0, len(dirty))
		values := make([]string, 0, len(dirty))
		for _, pair := range dirty {
			names = append(names, pair.Column)
			if meta.IsLargeText(pair.Column) {
				values = append(values, dialect.EmptyLob())
			} else {
				values = append(values, dialect.Bind(pair.Column))
			}
		}
		sb.WriteString("INSERT INTO ")
		sb.WriteString(meta.Table)
		sb.WriteString(" (")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.Join(values, ", "))
		sb.WriteString(")")
	case ModeUpdate:
		if len(dirty) == 0 {
			return nil, errors.Errorf("xlob: nothing to update in %v", meta.Table)
		}
		if len(where) == 0 {
			return nil, errors.Errorf("xlob: update of %v without primary key", meta.Table)
		}
		sets := make([]string, 0, len(dirty))
		for _, pair := range dirty {
			if meta.IsLargeText(pair.Column) {
				sets = append(sets, pair.Column+" = "+dialect.EmptyLob())
			} else {
				sets = append(sets, pair.Column+" = "+dialect.Bind(pair.Column))
			}
		}
		conds := make([]string, 0, len(where))
		for _, pair := range where {
			conds = append(conds, pair.Column+" = "+dialect.Bind(keyBind(pair.Column)))
		}
		sb.WriteString("UPDATE ")
		sb.WriteString(meta.Table)
		sb.WriteString(" SET ")
		sb.WriteString(strings.Join(sets, ", "))
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	default:
		return nil, errors.Errorf("xlob: unknown write mode %v", mode)
	}

	if len(stmt.Lobs) > 0 && dialect.LocatorReturning() {
		binds := make([]string, 0, len(stmt.Lobs))
		for _, name := range stmt.Lobs {
			binds = append(binds, dialect.Bind(name))
		}
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(stmt.Lobs, ", "))
		sb.WriteString(" INTO ")
		sb.WriteString(strings.Join(binds, ", "))
	} else if mode == ModeInsert && len(returning) > 0 {
		names := make([]string, 0, len(returning))
		binds := make([]string, 0, len(returning))
		for _, col := range returning {
			names = append(names, col.Name)
			binds = append(binds, dialect.Bind(col.Name))
		}
		switch dialect.KeyReturn() {
		case KeyReturnInto:
			sb.WriteString(" RETURNING ")
			sb.WriteString(strings.Join(names, ", "))
			sb.WriteString(" INTO ")
			sb.WriteString(strings.Join(binds, ", "))
			stmt.Returning = returning
		case KeyReturnRow:
			sb.WriteString(" RETURNING ")
			sb.WriteString(strings.Join(names, ", "))
			stmt.Returning = returning
		case KeyReturnLastID, KeyReturnRowID:
			stmt.Returning = returning
		}
	}

	stmt.SQL = sb.String()
	return stmt, nil
}

// buildSelect 生成按主键查询指定列的语句。
func buildSelect(meta *Meta, dialect IDialect, columns []string, where []Pair) *Query {
	conds := make([]string, 0, len(where))
	for _, pair := range where {
		conds = append(conds, pair.Column+" = "+dialect.Bind(pair.Column))
	}
	sql := "SELECT " + strings.Join(columns, ", ") + " FROM " + meta.Table
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return &Query{Table: meta.Table, SQL: sql, Columns: columns, Where: where}
}

// buildLatest 生成按主键降序查询最新记录主键的语句。
// 并发插入时结果可能属于其他会话，仅作为驱动无法返回主键时的回退。
func buildLatest(meta *Meta, dialect IDialect) *Query {
	return buildLatestOf(meta.Table, meta.PrimaryKey(), dialect)
}

func buildLatestOf(table string, keys []string, dialect IDialect) *Query {
	orders := make([]string, 0, len(keys))
	for _, key := range keys {
		orders = append(orders, key+" DESC")
	}
	sql := "SELECT " + strings.Join(keys, ", ") + " FROM " + table + " ORDER BY " + strings.Join(orders, ", ")
	return &Query{Table: table, SQL: dialect.Limit(sql, 1), Columns: keys, OrderDesc: keys}
}

// buildRowID 生成按 SQLite rowid 查询主键的语句。
func buildRowID(table string, keys []string) *Query {
	sql := "SELECT " + strings.Join(keys, ", ") + " FROM " + table + " WHERE rowid = ?"
	return &Query{Table: table, SQL: sql, Columns: keys}
}

// buildLocatorWrite 生成模拟定位符时填充大文本的语句。
func buildLocatorWrite(table string, dialect IDialect, column string, key []Pair) string {
	conds := make([]string, 0, len(key))
	for _, pair := range key {
		conds = append(conds, pair.Column+" = "+dialect.Bind(keyBind(pair.Column)))
	}
	return "UPDATE " + table + " SET " + column + " = " + dialect.Bind(column) + " WHERE " + strings.Join(conds, " AND ")
}
