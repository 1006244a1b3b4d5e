// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

// TestBuildStatement 测试各方言下写入语句的生成。
func TestBuildStatement(t *testing.T) {
	meta := &Meta{
		Table: "doc",
		Columns: []*Column{
			{Name: "id", Type: TypeInt, Pk: true, Auto: true},
			{Name: "title", Type: TypeString},
			{Name: "body", Type: TypeClob},
			{Name: "note", Type: TypeClob},
		},
	}
	dirty := []Pair{{"title", "x"}, {"body", "b"}, {"note", "n"}}
	where := []Pair{{"id", int64(7)}}
	returning := []*Column{meta.Column("id")}

	tests := []struct {
		name      string
		dialect   IDialect
		mode      Mode
		dirty     []Pair
		where     []Pair
		returning []*Column
		sql       string
	}{
		{"OCIInsert", OCI, ModeInsert, dirty, nil, returning,
			"INSERT INTO doc (title, body, note) VALUES (:title, EMPTY_CLOB(), EMPTY_CLOB()) RETURNING body, note INTO :body, :note"},
		{"OCIUpdate", OCI, ModeUpdate, dirty, where, nil,
			"UPDATE doc SET title = :title, body = EMPTY_CLOB(), note = EMPTY_CLOB() WHERE id = :pk_id RETURNING body, note INTO :body, :note"},
		{"OCIScalar", OCI, ModeInsert, dirty[:1], nil, returning,
			"INSERT INTO doc (title) VALUES (:title)"},
		{"OracleInsert", Oracle, ModeInsert, dirty, nil, returning,
			"INSERT INTO doc (title, body, note) VALUES (?, EMPTY_CLOB(), EMPTY_CLOB()) RETURNING id INTO ?"},
		{"OracleUpdate", Oracle, ModeUpdate, dirty[1:2], where, nil,
			"UPDATE doc SET body = EMPTY_CLOB() WHERE id = ?"},
		{"MySQLInsert", MySQL, ModeInsert, dirty, nil, returning,
			"INSERT INTO doc (title, body, note) VALUES (?, '', '')"},
		{"PostgresInsert", Postgres, ModeInsert, dirty, nil, returning,
			"INSERT INTO doc (title, body, note) VALUES (?, '', '') RETURNING id"},
		{"SQLiteUpdate", SQLite, ModeUpdate, dirty[:2], where, nil,
			"UPDATE doc SET title = ?, body = '' WHERE id = ?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := buildStatement(meta, tt.dialect, tt.mode, tt.dirty, tt.where, tt.returning)
			assert.Nil(t, err, "生成语句不应当出错。")
			assert.Equal(t, tt.sql, stmt.SQL, "生成的语句应当符合方言。")
			assert.NotEmpty(t, stmt.ID, "语句应当有唯一标识。")
			assert.Equal(t, []string{"id"}, stmt.Key)
		})
	}

	t.Run("Partition", func(t *testing.T) {
		stmt, _ := buildStatement(meta, OCI, ModeInsert, dirty, nil, nil)
		assert.Equal(t, []Pair{{"title", "x"}}, stmt.Scalars, "普通列应当绑定普通值。")
		assert.Equal(t, []string{"body", "note"}, stmt.Lobs, "大文本列应当走定位符。")
	})

	t.Run("UniqueID", func(t *testing.T) {
		s1, _ := buildStatement(meta, OCI, ModeInsert, dirty, nil, nil)
		s2, _ := buildStatement(meta, OCI, ModeInsert, dirty, nil, nil)
		assert.NotEqual(t, s1.ID, s2.ID, "每次生成的语句不应当复用。")
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := buildStatement(meta, OCI, ModeInsert, nil, nil, nil)
		assert.NotNil(t, err, "没有列时应当出错。")
		_, err = buildStatement(meta, OCI, ModeUpdate, dirty, nil, nil)
		assert.NotNil(t, err, "没有主键条件的更新应当出错。")
		_, err = buildStatement(meta, OCI, Mode(0), dirty, nil, nil)
		assert.NotNil(t, err, "未知的写入方式应当出错。")
	})
}

// TestBuildQuery 测试查询语句的生成。
func TestBuildQuery(t *testing.T) {
	meta := &Meta{
		Table: "doc",
		Columns: []*Column{
			{Name: "a", Type: TypeInt, Pk: true},
			{Name: "b", Type: TypeInt, Pk: true},
			{Name: "body", Type: TypeClob},
		},
	}
	key := []Pair{{"a", 1}, {"b", 2}}

	assert.Equal(t, "SELECT body FROM doc WHERE a = :a AND b = :b", buildSelect(meta, OCI, []string{"body"}, key).SQL, "重读语句应当以复合主键为条件。")
	assert.Equal(t, "SELECT a, b FROM doc ORDER BY a DESC, b DESC FETCH FIRST 1 ROWS ONLY", buildLatest(meta, OCI).SQL, "应当按所有主键降序查询。")
	assert.Equal(t, "SELECT a, b FROM doc ORDER BY a DESC, b DESC LIMIT 1", buildLatest(meta, MySQL).SQL)
	assert.Equal(t, "UPDATE doc SET body = ? WHERE a = ? AND b = ?", buildLocatorWrite("doc", SQLite, "body", key))
	assert.Equal(t, "SELECT a, b FROM doc WHERE rowid = ?", buildRowID("doc", meta.PrimaryKey()).SQL, "应当按 rowid 查询主键。")
}

// TestDialectOf 测试根据驱动名称获取方言。
func TestDialectOf(t *testing.T) {
	assert.Equal(t, Oracle, DialectOf("oracle"))
	assert.Equal(t, MySQL, DialectOf("mysql"))
	assert.Equal(t, SQLite, DialectOf("sqlite3"))
	assert.Equal(t, Postgres, DialectOf("postgres"))
	assert.Nil(t, DialectOf("unknown"), "未知的驱动应当返回 nil。")
	assert.Equal(t, KeyReturnNone, OCI.KeyReturn())
	assert.Equal(t, KeyReturnRowID, SQLite.KeyReturn(), "SQLite 应当按 rowid 查询主键。")
	assert.Equal(t, KeyReturnLastID, MySQL.KeyReturn())
	assert.True(t, OCI.LocatorReturning(), "OCI 方言应当返回定位符。")
	assert.False(t, Oracle.LocatorReturning())
	assert.Equal(t, sqlx.NAMED, sqlx.BindType("oracle"), "go-ora 的占位符应当被重绑定为命名形式。")
}
