// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import "context"

// Mode 是写入的方式。
type Mode int

const (
	ModeInsert Mode = iota + 1 // 插入
	ModeUpdate                 // 更新
)

// String 返回写入方式的名称。
func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "Insert"
	case ModeUpdate:
		return "Update"
	default:
		return "Unknown"
	}
}

// Pair 是一个列名和值的组合。
type Pair struct {
	Column string
	Value  any
}

// Statement 描述了一次写入的语句，由 Writer 生成并独占，不会跨调用复用。
// SQL 为按方言生成的语句文本，其余字段为结构化描述，供无法直接执行定位符协议的驱动使用。
type Statement struct {
	ID        string    // 语句标识，用于日志追踪
	Mode      Mode      // 写入方式
	Table     string    // 数据表名
	Key       []string  // 主键列
	SQL       string    // 语句文本
	Scalars   []Pair    // 普通列，顺序与占位符一致
	Lobs      []string  // 大文本列，顺序与 INTO 子句一致
	Where     []Pair    // 更新时定位记录的主键条件
	Returning []*Column // 插入时需要由服务端返回的主键列
}

// Query 描述了一次单行查询。
type Query struct {
	Table     string   // 数据表名
	SQL       string   // 语句文本
	Columns   []string // 查询的列
	Where     []Pair   // 等值条件，顺序与占位符一致
	OrderDesc []string // 降序排列的列
}

// Locator 是驱动分配的大对象定位符，每次执行时为每个大文本列新建一个，
// 在释放之前由创建它的语句独占。
type Locator struct {
	Column   string // 所属的大文本列
	Handle   any    // 驱动内部的句柄
	released bool
}

func newLocator(column string) *Locator { return &Locator{Column: column} }

// Release 释放定位符持有的句柄。
func (l *Locator) Release() {
	l.Handle = nil
	l.released = true
}

// Released 判断定位符是否已被释放。
func (l *Locator) Released() bool { return l.released }

// IDriver 是支持大对象写入的驱动接口。
type IDriver interface {
	// Dialect 返回驱动对应的 SQL 方言。
	Dialect() IDialect

	// Begin 独占一个连接并开启事务（非自动提交）。
	Begin(ctx context.Context) (ISession, error)

	// Query 在事务外执行查询并返回第一行，没有记录时返回 ErrNoRows。
	Query(ctx context.Context, query *Query) ([]any, error)
}

// ISession 是一次写入独占的连接和事务。
type ISession interface {
	// Prepare 在事务中预编译语句。
	Prepare(ctx context.Context, stmt *Statement) (IStatement, error)

	// Commit 提交事务。
	Commit() error

	// Rollback 回滚事务。
	Rollback() error

	// Release 归还连接。
	Release() error
}

// IStatement 是预编译的语句。
type IStatement interface {
	// BindScalar 将普通值绑定到命名占位符。
	BindScalar(name string, value any) error

	// BindLocatorOutput 将定位符绑定到 INTO 子句的输出占位符。
	BindLocatorOutput(name string, loc *Locator) error

	// Execute 执行语句（不提交），返回受影响的行数。
	Execute(ctx context.Context) (int64, error)

	// WriteLocator 将大文本写入执行后得到的定位符。
	WriteLocator(ctx context.Context, loc *Locator, value string) error

	// Keys 返回驱动在执行时直接得到的主键值，不支持时返回 nil。
	Keys() map[string]any

	// Release 释放语句。
	Release() error
}
