// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	go_ora "github.com/sijms/go-ora/v2"
)

// Oracle 是基于 go-ora（database/sql）的 Oracle 方言。
// database/sql 无法返回可写的定位符，因此大文本列先以 EMPTY_CLOB() 占位，
// 执行后在同一事务内按主键写入；服务端生成的主键通过 RETURNING ... INTO 获取。
var Oracle IDialect = oracleDialect{}

func init() {
	// go-ora 注册的驱动名为 oracle，sqlx 默认不识别，需要声明为 :argN 形式的占位符。
	sqlx.BindDriver("oracle", sqlx.NAMED)
}

type oracleDialect struct{}

func (oracleDialect) Name() string { return "oracle" }
func (oracleDialect) Bind(name string) string { return "?" }
func (oracleDialect) EmptyLob() string { return "EMPTY_CLOB()" }
func (oracleDialect) LocatorReturning() bool { return false }
func (oracleDialect) KeyReturn() KeyReturn { return KeyReturnInto }

// LobValue 超过 32K 的文本需要以 Clob 绑定，否则会被截断为 VARCHAR2。
func (oracleDialect) LobValue(value string) any {
	return go_ora.Clob{String: value, Valid: true}
}

func (oracleDialect) Limit(query string, n int) string {
	return fmt.Sprintf("%v FETCH FIRST %d ROWS ONLY", query, n)
}
