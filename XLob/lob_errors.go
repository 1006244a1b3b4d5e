// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	// ErrFatal 标识了无法在组件内恢复的驱动故障，调用方可以据此决定是否在更高层重试。
	ErrFatal = errors.New("xlob: fatal driver fault")

	// ErrInvalidMeta 标识了无效的写入配置。
	ErrInvalidMeta = errors.New("xlob: invalid meta")

	// ErrBlobUnsupported 标识了尚未实现的二进制大对象列。
	ErrBlobUnsupported = errors.New("xlob: blob columns are not implemented")

	// ErrNoRows 标识了查询没有返回任何记录。
	ErrNoRows = errors.New("xlob: no rows in result set")

	// ErrKeyUnresolved 标识了插入后无法确定主键的值。
	ErrKeyUnresolved = errors.New("xlob: primary key unresolved")
)

// Reason 是写入失败的原因。
type Reason int

const (
	ReasonNone      Reason = iota // 成功
	ExecutionError                // 语句执行失败：SQL 错误、约束冲突、连接中断等
	LobWriteError                 // 语句执行成功后填充大对象失败
	ValidationError               // 写入前的校验或回调拒绝了记录
)

// String 返回失败原因的名称。
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ExecutionError:
		return "ExecutionError"
	case LobWriteError:
		return "LobWriteError"
	case ValidationError:
		return "ValidationError"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Result 是一次写入的结果。
// 预期内的失败（执行失败、大对象写入失败、校验失败）通过 Result 报告，
// 此时事务已经回滚，Write 返回的 error 为 nil。
type Result struct {
	Success      bool           // 是否成功
	RowsAffected int64          // 受影响的行数
	Reason       Reason         // 失败原因
	Err          error          // 失败的具体错误，成功时也可能携带非致命的告警（如主键无法解析）
	Changed      map[string]any // 变更的列及其变更前的值
}

// FatalError 描述了一次致命的驱动故障，如开启事务失败、提交或回滚时连接中断。
type FatalError struct {
	Op    string // 出错的操作
	Cause error  // 原始错误
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("xlob: fatal fault on %v: %v", e.Op, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// Is 使 errors.Is(err, ErrFatal) 对所有致命错误成立。
func (e *FatalError) Is(target error) bool { return target == ErrFatal }

// IsFatal 判断错误是否为致命的驱动故障。
func IsFatal(err error) bool {
	return err != nil && errors.Is(err, ErrFatal)
}

func fatal(op string, cause error) error {
	return errors.WithStack(&FatalError{Op: op, Cause: cause})
}

// isBadConn 判断错误是否由连接失效引起。
func isBadConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn)
}

// describe 返回便于日志检索的错误描述，驱动错误会附带错误码。
func describe(err error) string {
	if err == nil {
		return ""
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return fmt.Sprintf("[MySQL:%d] %v", merr.Number, err)
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		return fmt.Sprintf("[Postgres:%v] %v", perr.Code, err)
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return fmt.Sprintf("[SQLite:%d] %v", int(serr.Code), err)
	}
	if isBadConn(err) {
		return fmt.Sprintf("[BadConn] %v", err)
	}
	return err.Error()
}
