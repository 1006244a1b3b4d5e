// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

// ColumnType 定义了列的数据类型。
type ColumnType int

const (
	TypeString ColumnType = iota // 字符串
	TypeInt                      // 整型
	TypeFloat                    // 浮点
	TypeBool                     // 布尔
	TypeTime                     // 时间
	TypeClob                     // 大文本（CLOB）
	TypeBlob                     // 二进制大对象（BLOB），暂未实现
)

// String 返回列类型的名称。
func (ct ColumnType) String() string {
	switch ct {
	case TypeString:
		return "String"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeBool:
		return "Bool"
	case TypeTime:
		return "Time"
	case TypeClob:
		return "Clob"
	case TypeBlob:
		return "Blob"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(ct))
	}
}

// Column 描述了数据表中的一列。
type Column struct {
	Name  string     // 列名
	Type  ColumnType // 数据类型
	Pk    bool       // 是否为主键
	Auto  bool       // 是否由服务端生成（自增、序列等）
	Field string     // 对应的结构体字段名，仅模型使用
}

// Cast 将驱动返回的值转换为列类型对应的 Go 类型。
// 整型转换为 int64，浮点转换为 float64，字符串和大文本转换为 string。
func (c *Column) Cast(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case []byte:
			return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		case float32:
			return int64(v), nil
		case float64:
			return int64(v), nil
		}
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case []byte:
			return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		}
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case []byte:
			return strconv.ParseBool(string(v))
		case string:
			return strconv.ParseBool(v)
		}
	case TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case []byte:
			return time.Parse(time.RFC3339Nano, string(v))
		case string:
			return time.Parse(time.RFC3339Nano, v)
		}
	case TypeString, TypeClob:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	case TypeBlob:
		return nil, ErrBlobUnsupported
	}
	return nil, errors.Errorf("xlob: cannot cast %T to %v of column %v", value, c.Type, c.Name)
}

// BeforeHook 在写入前调用，返回错误则放弃写入并报告校验失败。
type BeforeHook func(rec *Record, insert bool) error

// AfterHook 在写入成功后调用，changed 为变更列及其变更前的值。
type AfterHook func(rec *Record, insert bool, changed map[string]any)

// Meta 是单个数据类型的写入配置，在构造 Writer 时显式传入。
type Meta struct {
	Alias       string       // 数据库别名
	Table       string       // 数据表名
	Columns     []*Column    // 列定义，顺序即生成 SQL 的顺序，NewWriter 或 Register 之后不应再修改
	BeforeWrite []BeforeHook // 写入前回调
	AfterWrite  []AfterHook  // 写入后回调

	mu      sync.RWMutex
	columns map[string]*Column
}

func (m *Meta) index() map[string]*Column {
	m.mu.RLock()
	columns := m.columns
	m.mu.RUnlock()
	if columns == nil {
		columns = m.reindex()
	}
	return columns
}

// reindex 根据 Columns 重建列名索引，Validate 时调用。
func (m *Meta) reindex() map[string]*Column {
	columns := make(map[string]*Column, len(m.Columns))
	for _, col := range m.Columns {
		if col != nil {
			columns[col.Name] = col
		}
	}
	m.mu.Lock()
	m.columns = columns
	m.mu.Unlock()
	return columns
}

// Column 按列名查找列定义，不存在时返回 nil。
func (m *Meta) Column(name string) *Column { return m.index()[name] }

// PrimaryKey 返回主键列名列表。
func (m *Meta) PrimaryKey() []string {
	var names []string
	for _, col := range m.Columns {
		if col.Pk {
			names = append(names, col.Name)
		}
	}
	return names
}

// LargeText 返回大文本列名列表。
func (m *Meta) LargeText() []string {
	var names []string
	for _, col := range m.Columns {
		if col.Type == TypeClob {
			names = append(names, col.Name)
		}
	}
	return names
}

// IsLargeText 判断指定列是否为大文本列。
func (m *Meta) IsLargeText(name string) bool {
	col := m.Column(name)
	return col != nil && col.Type == TypeClob
}

// IsPrimaryKey 判断指定列是否为主键列。
func (m *Meta) IsPrimaryKey(name string) bool {
	col := m.Column(name)
	return col != nil && col.Pk
}

// Validate 检查配置的完整性。
func (m *Meta) Validate() error {
	if m == nil {
		return errors.Wrap(ErrInvalidMeta, "nil meta")
	}
	if m.Table == "" {
		return errors.Wrap(ErrInvalidMeta, "table name is empty")
	}
	seen := make(map[string]struct{}, len(m.Columns))
	pks := 0
	for _, col := range m.Columns {
		if col == nil || col.Name == "" {
			return errors.Wrapf(ErrInvalidMeta, "%v: column without name", m.Table)
		}
		if _, ok := seen[col.Name]; ok {
			return errors.Wrapf(ErrInvalidMeta, "%v: duplicated column %v", m.Table, col.Name)
		}
		seen[col.Name] = struct{}{}
		if col.Type == TypeBlob {
			return errors.Wrapf(ErrBlobUnsupported, "%v.%v", m.Table, col.Name)
		}
		if col.Pk {
			if col.Type == TypeClob {
				return errors.Wrapf(ErrInvalidMeta, "%v: primary key %v can not be a large text column", m.Table, col.Name)
			}
			pks++
		}
	}
	if pks == 0 {
		return errors.Wrapf(ErrInvalidMeta, "%v: primary key was not found", m.Table)
	}
	m.reindex()
	return nil
}

// MetaOf 根据模型的结构体标签生成写入配置。
//
// 支持的标签：
//
//	orm:"column(name);pk;auto"  列名、主键、服务端生成
//	orm:"-"                     忽略字段
//	lob:"clob"                  大文本列
//	lob:"blob"                  二进制大对象列（暂未实现，校验时报错）
func MetaOf(model IModel) *Meta {
	if model == nil {
		return nil
	}
	meta := &Meta{Alias: model.AliasName(), Table: model.TableName()}
	rt := reflect.TypeOf(model)
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("orm")
		if tag == "-" {
			continue
		}
		col := &Column{Name: snakeString(sf.Name), Field: sf.Name, Type: typeOfField(sf.Type)}
		for _, part := range strings.Split(tag, ";") {
			part = strings.TrimSpace(part)
			switch {
			case part == "pk":
				col.Pk = true
			case part == "auto":
				col.Auto = true
			case strings.HasPrefix(part, "column(") && strings.HasSuffix(part, ")"):
				col.Name = part[len("column(") : len(part)-1]
			}
		}
		switch strings.ToLower(sf.Tag.Get("lob")) {
		case "clob":
			col.Type = TypeClob
		case "blob":
			col.Type = TypeBlob
		}
		meta.Columns = append(meta.Columns, col)
	}
	return meta
}

// typeOfField 根据字段类型推断列类型。
func typeOfField(t reflect.Type) ColumnType {
	if t == reflect.TypeOf(time.Time{}) {
		return TypeTime
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeBool
	default:
		return TypeString
	}
}

// snakeString 将驼峰命名转换为下划线命名，连续的大写字母视为一个单词（ID -> id）。
// 与 beego/orm 的默认规则不同，建议模型总是显式声明 column 标签。
func snakeString(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
