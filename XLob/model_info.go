// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
)

// modelInfo 定义了已注册模型的写入配置和写入器。
type modelInfo struct {
	meta   *Meta
	mu     sync.Mutex
	writer *Writer
}

// Writer 返回模型的写入器，首次调用时根据数据库别名创建。
func (mi *modelInfo) Writer() (*Writer, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.writer != nil {
		return mi.writer, nil
	}
	driver, err := OpenDriver(mi.meta.Alias)
	if err != nil {
		return nil, err
	}
	writer, err := NewWriter(driver, mi.meta)
	if err != nil {
		return nil, err
	}
	mi.writer = writer
	return writer, nil
}

var (
	// modelCache 存储所有已注册模型的信息。
	modelCache = make(map[string]*modelInfo)

	// modelCacheMu 用于保护模型缓存。
	modelCacheMu sync.RWMutex
)

// getModelInfo 获取指定模型的信息，模型未注册时返回 nil。
func getModelInfo(model IModel) *modelInfo {
	if model == nil {
		return nil
	}
	modelCacheMu.RLock()
	defer modelCacheMu.RUnlock()
	return modelCache[model.ModelUnique()]
}

// Register 注册一个模型并返回其写入配置，写入前后的回调应在首次写入前追加至返回的配置中。
// 如果模型为 nil、已注册或配置无效，将触发 panic。
//
// 使用示例：
//
//	meta := XLob.Register(NewArticle())
//	meta.BeforeWrite = append(meta.BeforeWrite, validateArticle)
func Register(model IModel) *Meta {
	if model == nil {
		XLog.Panic("XLob.Register: nil model instance.")
		return nil
	}

	modelCacheMu.Lock()
	defer modelCacheMu.Unlock()

	id := model.ModelUnique()
	if _, ok := modelCache[id]; ok {
		XLog.Panic("XLob.Register: duplicated model of %v.", id)
		return nil
	}
	meta := MetaOf(model)
	if err := meta.Validate(); err != nil {
		XLog.Panic("XLob.Register: invalid model of %v: %v", id, err)
		return nil
	}
	orm.RegisterModel(model)
	modelCache[id] = &modelInfo{meta: meta}
	return meta
}

// Cleanup 重置模型缓存和驱动缓存。
func Cleanup() {
	modelCacheMu.Lock()
	defer modelCacheMu.Unlock()

	modelCache = make(map[string]*modelInfo)
	closeDrivers()
	orm.ResetModelCache()
}
