// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"path/filepath"
	"testing"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/stretchr/testify/assert"
)

// TestLobInit 测试数据源的初始化。
func TestLobInit(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		prefs   XPrefs.IBase
		aliases []string
		wantErr bool
	}{
		{
			name: "single_source_test",
			prefs: XPrefs.New().Set("Lob/Source/SQLite3/init1", XPrefs.New().
				Set(prefsSourceAddr, filepath.Join(dir, "init1.db")).
				Set(prefsSourcePool, 2).
				Set(prefsSourceConn, 4)),
			aliases: []string{"init1"},
		},
		{
			name: "multiple_source_test",
			prefs: XPrefs.New().
				Set("Lob/Source/SQLite/init2", XPrefs.New().
					Set(prefsSourceAddr, filepath.Join(dir, "init2.db"))).
				Set("Lob/Source/SQLite3/init3", XPrefs.New().
					Set(prefsSourceAddr, filepath.Join(dir, "init3.db")).
					Set(prefsSourceConn, 8)).
				Set("Other/Key", 1),
			aliases: []string{"init2", "init3"},
		},
		{
			name:    "invalid_key_test",
			prefs:   XPrefs.New().Set("Lob/Source/SQLite3", XPrefs.New()),
			wantErr: true,
		},
		{
			name: "invalid_driver_test",
			prefs: XPrefs.New().Set("Lob/Source/Unknown/init4", XPrefs.New().
				Set(prefsSourceAddr, "nowhere")),
			wantErr: true,
		},
		{
			name:    "nil_config_test",
			prefs:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Panics(t, func() { initSource(tt.prefs) }, "无效的配置应当触发 panic。")
				return
			}

			initSource(tt.prefs)
			for _, alias := range tt.aliases {
				db, err := orm.GetDB(alias)
				assert.Nil(t, err, "数据源 %v 应当被注册。", alias)
				assert.Nil(t, db.Ping(), "数据源 %v 应当可以连接。", alias)
			}
		})
	}
}

// TestDriverNameOf 测试驱动名称的转换。
func TestDriverNameOf(t *testing.T) {
	assert.Equal(t, "mysql", driverNameOf("MySQL"))
	assert.Equal(t, "mysql", driverNameOf("TiDB"))
	assert.Equal(t, "sqlite3", driverNameOf("SQLite"))
	assert.Equal(t, "postgres", driverNameOf("PostgreSQL"))
	assert.Equal(t, "oracle", driverNameOf("Oracle"))
	assert.Equal(t, "custom", driverNameOf("Custom"))

	assert.Equal(t, "mysql", driverNameOfType(orm.DRMySQL))
	assert.Equal(t, "sqlite3", driverNameOfType(orm.DRSqlite))
	assert.Equal(t, "postgres", driverNameOfType(orm.DRPostgres))
	assert.Equal(t, "oracle", driverNameOfType(orm.DROracle))
}

// TestOpenDriver 测试驱动的创建和缓存。
func TestOpenDriver(t *testing.T) {
	defer closeDrivers()

	assert.Nil(t, RegisterSource("open1", "sqlite3", filepath.Join(t.TempDir(), "open1.db"), 0, 0))

	driver, err := OpenDriver("open1")
	assert.Nil(t, err, "应当基于已注册的数据源创建驱动。")
	assert.Equal(t, SQLite, driver.Dialect())
	again, _ := OpenDriver("open1")
	assert.Same(t, driver, again, "同一别名应当复用驱动。")

	_, err = OpenDriver("missing")
	assert.NotNil(t, err, "未注册的数据源应当出错。")

	mem := newMemDriver(newArticleMeta())
	UseDriver("missing", mem)
	driver, err = OpenDriver("missing")
	assert.Nil(t, err)
	assert.Equal(t, mem, driver, "应当使用指定的驱动。")
	assert.Equal(t, OCI, driver.Dialect())

	UseDriver("missing", nil)
	_, err = OpenDriver("missing")
	assert.NotNil(t, err, "移除指定的驱动后应当出错。")

	closeDrivers()
	driver, err = OpenDriver("open1")
	assert.Nil(t, err)
	assert.NotSame(t, again, driver, "清除缓存后应当重新创建驱动。")
}
