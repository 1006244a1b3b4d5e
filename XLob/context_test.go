// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"
	"sync"
	"testing"

	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestContext 测试会话统计。
func TestContext(t *testing.T) {
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			writer, driver := newArticleWriter(t)
			ctx := context.Background()
			gid := goid.Get()
			assert.Nil(t, getContext(gid), "开始会话前不应当存在统计。")

			// 开始会话
			sid := Watch()
			assert.Greater(t, sid, 0, "会话 ID 应当大于 0。")
			wctx := getContext()
			assert.NotNil(t, wctx, "开始会话后应当存在统计。")
			assert.Same(t, wctx, getContext(gid))

			rec := NewRecord(writer.Meta()).Set("title", "x").Set("body", "12345")
			result, _ := writer.Insert(ctx, rec)
			assert.True(t, result.Success)
			rec.Set("body", "123")
			result, _ = writer.Update(ctx, rec)
			assert.True(t, result.Success)

			driver.failLob = errors.New("lob stream broken")
			rec.Set("body", "1")
			result, _ = writer.Update(ctx, rec)
			assert.False(t, result.Success)

			assert.Nil(t, writer.Read(ctx, rec))

			assert.Equal(t, int64(1), wctx.insertCount, "插入次数应当为 1。")
			assert.Equal(t, int64(2), wctx.updateCount, "更新次数应当为 2。")
			assert.Equal(t, int64(1), wctx.failCount, "失败次数应当为 1。")
			assert.Equal(t, int64(1), wctx.readCount, "重读次数应当为 1。")
			assert.Equal(t, int64(8), wctx.lobBytes, "仅成功提交的大文本计入字节数。")

			// 结束会话
			Defer()
			assert.Nil(t, getContext(gid), "结束会话后不应当存在统计。")
		}()
	}
	wg.Wait()
}

// TestContextDefer 测试未开始会话时的结束操作。
func TestContextDefer(t *testing.T) {
	assert.NotPanics(t, func() { Defer() }, "未开始的会话结束时不应当 panic。")
	assert.Nil(t, getContext())
}
