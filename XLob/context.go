// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XString"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/petermattis/goid"
)

var (
	// contextID 是会话 ID 的原子计数器。
	contextID int64

	// contextMap 存储了会话统计，键为 goroutine ID。
	contextMap sync.Map

	// contextPool 是会话统计的对象池。
	contextPool = sync.Pool{New: func() any { return new(watchContext) }}
)

// watchContext 记录了一个会话内的读写统计。
type watchContext struct {
	time          int   // 会话开始时间
	readCount     int64 // 大文本重读次数
	readElapsed   int64 // 大文本重读耗时
	insertCount   int64 // 插入次数
	insertElapsed int64 // 插入耗时
	updateCount   int64 // 更新次数
	updateElapsed int64 // 更新耗时
	failCount     int64 // 失败次数
	lobBytes      int64 // 已提交的大文本字节数
}

func (ctx *watchContext) reset() {
	*ctx = watchContext{}
}

// getContext 根据 goroutine ID 获取会话统计，未开启监控时返回 nil。
func getContext(gid ...int64) *watchContext {
	var ggid int64
	if len(gid) > 0 {
		ggid = gid[0]
	} else {
		ggid = goid.Get()
	}
	if value, _ := contextMap.Load(ggid); value != nil {
		return value.(*watchContext)
	}
	return nil
}

// Watch 开始统计当前 goroutine 的读写，返回新分配的会话 ID。
//
// 使用示例：
//
//	sid := XLob.Watch()
//	defer XLob.Defer()
func Watch() int {
	gid := goid.Get()
	sid := int(atomic.AddInt64(&contextID, 1))
	ctx := contextPool.Get().(*watchContext)
	ctx.time = XTime.GetMicrosecond()
	contextMap.Store(gid, ctx)

	tag := XLog.Tag()
	if tag != nil {
		tag.Set("Go", XString.ToString(int(gid)))
		tag.Set("Context", XString.ToString(sid))
	}

	XLog.Info("XLob.Watch: context has been started.")
	return sid
}

// Defer 结束统计并输出汇总日志，应通过 defer 调用，确保每个 Watch 都有对应的 Defer。
func Defer() {
	gid := goid.Get()
	val, _ := contextMap.LoadAndDelete(gid)
	if val == nil {
		XLog.Error("XLob.Defer: context was not found.")
		return
	}
	ctx := val.(*watchContext)
	defer func() {
		ctx.reset()
		contextPool.Put(ctx)
	}()

	if !XLog.Able(XLog.LevelInfo) {
		return
	}
	otherCost := int64(XTime.GetMicrosecond() - ctx.time)
	var lobLog string
	if ctx.readCount > 0 {
		lobLog += fmt.Sprintf("[Read(%v):%.2fms] ", ctx.readCount, float64(ctx.readElapsed)/1e3)
		otherCost -= ctx.readElapsed
	}
	if ctx.insertCount > 0 {
		lobLog += fmt.Sprintf("[Insert(%v):%.2fms] ", ctx.insertCount, float64(ctx.insertElapsed)/1e3)
		otherCost -= ctx.insertElapsed
	}
	if ctx.updateCount > 0 {
		lobLog += fmt.Sprintf("[Update(%v):%.2fms] ", ctx.updateCount, float64(ctx.updateElapsed)/1e3)
		otherCost -= ctx.updateElapsed
	}
	if ctx.failCount > 0 {
		lobLog += fmt.Sprintf("[Fail:%v] ", ctx.failCount)
	}
	if ctx.lobBytes > 0 {
		lobLog += fmt.Sprintf("[Lob:%vB] ", ctx.lobBytes)
	}
	XLog.Info("XLob.Defer: context has been deferred, elapsed %.2fms for %v[Other:%.2fms].",
		float64(XTime.GetMicrosecond()-ctx.time)/1e3,
		lobLog,
		float64(otherCost)/1e3)
}
