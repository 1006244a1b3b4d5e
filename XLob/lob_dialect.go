// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"fmt"
	"strings"
)

// KeyReturn 是方言获取服务端生成主键的方式。
type KeyReturn int

const (
	KeyReturnNone   KeyReturn = iota // 不支持，回退至按主键降序查询最新记录
	KeyReturnInto                    // RETURNING <pk> INTO <binds>
	KeyReturnRow                     // RETURNING <pk>，结果以行的形式返回
	KeyReturnLastID                  // sql.Result.LastInsertId，仅适用于单列自增整型主键
	KeyReturnRowID                   // LastInsertId 为 rowid，在事务内按 rowid 查询主键
)

// IDialect 定义了生成 SQL 时与数据库相关的差异。
type IDialect interface {
	// Name 返回方言名称。
	Name() string

	// Bind 返回指定名称的占位符。
	Bind(name string) string

	// EmptyLob 返回大文本列的占位值。
	EmptyLob() string

	// LocatorReturning 判断是否通过 RETURNING ... INTO 返回大对象定位符。
	LocatorReturning() bool

	// KeyReturn 返回获取服务端生成主键的方式。
	KeyReturn() KeyReturn

	// LobValue 将大文本转换为驱动可绑定的值。
	LobValue(value string) any

	// Limit 为查询追加行数限制。
	Limit(query string, n int) string
}

var (
	// OCI 是原生支持大对象定位符的 Oracle 方言，生成的语句形如：
	//
	//	INSERT INTO t (id, body) VALUES (:id, EMPTY_CLOB()) RETURNING body INTO :body
	OCI IDialect = ociDialect{}

	// MySQL 是 MySQL 方言。
	MySQL IDialect = mysqlDialect{}

	// SQLite 是 SQLite 方言。
	SQLite IDialect = sqliteDialect{}

	// Postgres 是 PostgreSQL 方言。
	Postgres IDialect = postgresDialect{}
)

// DialectOf 根据 database/sql 的驱动名称返回方言，未知的驱动返回 nil。
func DialectOf(driverName string) IDialect {
	switch strings.ToLower(driverName) {
	case "oracle", "godror", "oci8", "ora":
		return Oracle
	case "mysql", "tidb":
		return MySQL
	case "sqlite3", "sqlite":
		return SQLite
	case "postgres", "pgx":
		return Postgres
	default:
		return nil
	}
}

type ociDialect struct{}

func (ociDialect) Name() string { return "oci" }
func (ociDialect) Bind(name string) string { return ":" + name }
func (ociDialect) EmptyLob() string { return "EMPTY_CLOB()" }
func (ociDialect) LocatorReturning() bool { return true }
func (ociDialect) KeyReturn() KeyReturn { return KeyReturnNone }
func (ociDialect) LobValue(value string) any { return value }
func (ociDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%v FETCH FIRST %d ROWS ONLY", query, n)
}

// questionDialect 是使用 ? 占位符且不支持定位符的方言的公共部分。
type questionDialect struct{}

func (questionDialect) Bind(name string) string { return "?" }
func (questionDialect) EmptyLob() string { return "''" }
func (questionDialect) LocatorReturning() bool { return false }
func (questionDialect) LobValue(value string) any { return value }
func (questionDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%v LIMIT %d", query, n)
}

type mysqlDialect struct{ questionDialect }

func (mysqlDialect) Name() string { return "mysql" }
func (mysqlDialect) KeyReturn() KeyReturn { return KeyReturnLastID }

type sqliteDialect struct{ questionDialect }

func (sqliteDialect) Name() string { return "sqlite3" }
func (sqliteDialect) KeyReturn() KeyReturn { return KeyReturnRowID }

// postgresDialect 的占位符由 sqlx 重绑定为 $n。
type postgresDialect struct{ questionDialect }

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) KeyReturn() KeyReturn { return KeyReturnRow }
