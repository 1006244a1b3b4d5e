// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// writeCounter 统计写入次数，result 为 Success、失败原因或 Fatal。
	writeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xlob_write_total",
		Help: "The total number of large object writes.",
	}, []string{"mode", "result"})

	// rollbackCounter 统计因写入失败而回滚的事务数。
	rollbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xlob_rollback_total",
		Help: "The total number of rolled back write transactions.",
	}, []string{"reason"})

	// lobBytesCounter 统计已提交的大文本字节数。
	lobBytesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xlob_lob_bytes_total",
		Help: "The total number of committed large text bytes.",
	})

	// writeHistogram 统计写入耗时（秒）。
	writeHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xlob_write_seconds",
		Help:    "The elapsed seconds of large object writes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)

func init() {
	prometheus.MustRegister(writeCounter, rollbackCounter, lobBytesCounter, writeHistogram)
}

// metricsInfo 定义了全局的统计信息。
type metricsInfo struct{}

var sharedMetrics = &metricsInfo{}

// 提供了统计信息的全局访问点。
func Metrics() *metricsInfo {
	return sharedMetrics
}

// Writes 返回指定写入方式和结果的写入次数。
func (m *metricsInfo) Writes(mode Mode, result string) prometheus.Counter {
	return writeCounter.WithLabelValues(mode.String(), result)
}

// Rollbacks 返回指定原因的回滚次数。
func (m *metricsInfo) Rollbacks(reason Reason) prometheus.Counter {
	return rollbackCounter.WithLabelValues(reason.String())
}

// LobBytes 返回已提交的大文本字节数。
func (m *metricsInfo) LobBytes() prometheus.Counter {
	return lobBytesCounter
}

// resultLabel 返回写入结果的标签值。
func resultLabel(result Result, err error) string {
	if IsFatal(err) {
		return "Fatal"
	}
	if result.Success {
		return "Success"
	}
	return result.Reason.String()
}

// recordWrite 记录一次写入的统计信息，elapsed 单位为微秒。
func recordWrite(mode Mode, elapsed int, result Result, err error, lobBytes int) {
	writeCounter.WithLabelValues(mode.String(), resultLabel(result, err)).Inc()
	writeHistogram.WithLabelValues(mode.String()).Observe(float64(elapsed) / 1e6)
	if result.Success {
		lobBytesCounter.Add(float64(lobBytes))
	} else if err == nil && (result.Reason == ExecutionError || result.Reason == LobWriteError) {
		rollbackCounter.WithLabelValues(result.Reason.String()).Inc()
	}

	if ctx := getContext(); ctx != nil {
		switch mode {
		case ModeInsert:
			ctx.insertCount++
			ctx.insertElapsed += int64(elapsed)
		case ModeUpdate:
			ctx.updateCount++
			ctx.updateElapsed += int64(elapsed)
		}
		if !result.Success {
			ctx.failCount++
		} else {
			ctx.lobBytes += int64(lobBytes)
		}
	}
}

// recordRead 记录一次大文本重读的统计信息，elapsed 单位为微秒。
func recordRead(elapsed int) {
	if ctx := getContext(); ctx != nil {
		ctx.readCount++
		ctx.readElapsed += int64(elapsed)
	}
}
