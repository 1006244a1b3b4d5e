// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"strings"
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/sijms/go-ora/v2"
)

const (
	prefsSourcePrefix = "Lob/Source/"
	prefsSourceAddr   = "Addr"
	prefsSourcePool   = "Pool"
	prefsSourceConn   = "Conn"
)

var (
	// driverCache 缓存了数据库别名对应的驱动，键为别名，值为 IDriver。
	driverCache sync.Map

	// driverMu 保证同一别名的驱动只创建一次。
	driverMu sync.Mutex
)

func init() {
	initSource(XPrefs.Asset())
}

// initSource 根据首选项注册数据源，键的格式为 Lob/Source/<Type>/<Alias>，如：
//
//	"Lob/Source/MySQL/main": {"Addr": "root:123456@tcp(127.0.0.1:3306)/main", "Pool": 10, "Conn": 100}
func initSource(prefs XPrefs.IBase) {
	if prefs == nil {
		XLog.Panic("XLob.Init: prefs is nil.")
		return
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, prefsSourcePrefix) {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(key, prefsSourcePrefix), "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			XLog.Panic("XLob.Init: invalid prefs key %v.", key)
			return
		}

		driverName := driverNameOf(parts[0])
		alias := parts[1]
		base, _ := prefs.Get(key).(XPrefs.IBase)
		if base == nil {
			XLog.Error("XLob.Init: invalid config for %v", key)
			continue
		}
		if err := RegisterSource(alias, driverName,
			base.GetString(prefsSourceAddr),
			base.GetInt(prefsSourcePool),
			base.GetInt(prefsSourceConn)); err != nil {
			XLog.Panic("XLob.Init: register source %v failed, err: %v", alias, err)
			return
		}
	}
}

// driverNameOf 将首选项中的数据源类型转换为 database/sql 的驱动名称。
func driverNameOf(sourceType string) string {
	switch strings.ToLower(sourceType) {
	case "mysql", "tidb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql":
		return "postgres"
	case "oracle":
		return "oracle"
	default:
		return strings.ToLower(sourceType)
	}
}

// RegisterSource 注册数据源，pool 为最大空闲连接数，conn 为最大打开连接数。
func RegisterSource(alias, driverName, addr string, pool, conn int) error {
	var params []orm.DBOption
	if pool > 0 {
		params = append(params, orm.MaxIdleConnections(pool))
	}
	if conn > 0 {
		params = append(params, orm.MaxOpenConnections(conn))
	}
	if err := orm.RegisterDataBase(alias, driverName, addr, params...); err != nil {
		return err
	}
	XLog.Notice("XLob.RegisterSource: source %v of %v has been registered.", alias, driverName)
	return nil
}

// UseDriver 指定数据库别名使用的驱动，用于接入原生支持定位符的驱动。
func UseDriver(alias string, driver IDriver) {
	if driver == nil {
		driverCache.Delete(alias)
		return
	}
	driverCache.Store(alias, driver)
}

// OpenDriver 返回数据库别名对应的驱动，未通过 UseDriver 指定时基于 beego/orm 的连接池创建 SqlDriver。
func OpenDriver(alias string) (IDriver, error) {
	if value, ok := driverCache.Load(alias); ok {
		return value.(IDriver), nil
	}

	driverMu.Lock()
	defer driverMu.Unlock()
	if value, ok := driverCache.Load(alias); ok {
		return value.(IDriver), nil
	}

	db, err := orm.GetDB(alias)
	if err != nil {
		return nil, errors.Wrapf(err, "xlob: open driver of %v", alias)
	}
	driverName := driverNameOfType(orm.NewOrmUsingDB(alias).Driver().Type())
	driver, err := NewSqlDriver(sqlx.NewDb(db, driverName), DialectOf(driverName))
	if err != nil {
		return nil, err
	}
	driverCache.Store(alias, driver)
	return driver, nil
}

// driverNameOfType 将 beego/orm 的驱动类型转换为 database/sql 的驱动名称。
func driverNameOfType(typ orm.DriverType) string {
	switch typ {
	case orm.DRMySQL, orm.DRTiDB:
		return "mysql"
	case orm.DRSqlite:
		return "sqlite3"
	case orm.DRPostgres:
		return "postgres"
	case orm.DROracle:
		return "oracle"
	default:
		return ""
	}
}

// closeDrivers 清除驱动缓存，连接池由 beego/orm 管理，不在此关闭。
func closeDrivers() {
	driverCache.Range(func(key, value any) bool {
		driverCache.Delete(key)
		return true
	})
}
