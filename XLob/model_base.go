// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XLob

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XObject"
	"github.com/eframework-org/GO.UTIL/XString"
)

// IModel 定义了包含大文本列的数据模型的基础接口。
// 读取、统计和删除通过 beego/orm 完成，写入通过 Writer 在单个事务内完成。
type IModel interface {
	// Ctor 执行模型的构造初始化。
	// obj 为模型实例，必须是实现了 IModel 接口的结构体指针。
	Ctor(obj any)

	// OnEncode 在对象写入前调用，通常用于在写入前对字段进行预处理。
	OnEncode()

	// OnDecode 在对象读取后调用，通常用于在读取后对字段进行后处理。
	OnDecode()

	// AliasName 返回数据库别名，此方法必须由子类实现。
	AliasName() string

	// TableName 返回数据表名称，此方法必须由子类实现。
	TableName() string

	// ModelUnique 返回模型的唯一标识，格式为 "数据库别名_表名"。
	ModelUnique() string

	// DataUnique 返回数据记录的唯一标识，格式为 "模型标识_主键值"。
	DataUnique() string

	// DataValue 获取指定字段的值，若字段不存在则返回 nil。
	DataValue(field string) any

	// Count 统计符合条件的记录数量，如果发生错误则返回 -1。
	Count(cond ...*orm.Condition) int

	// Write 插入或更新当前记录，仅写入自上次读取以来变化的列。
	// 返回受影响的行数，如果发生错误则返回 -1。
	Write() int

	// Read 读取符合条件的记录，若不指定条件则使用主键，大文本列通过标量查询重新读取。
	// 返回是否成功读取到记录。
	Read(cond ...*orm.Condition) bool

	// List 查询符合条件的记录列表，rets 必须是指向切片的指针。
	// 返回查询到的记录数量，如果发生错误则返回 -1。
	List(rets any, cond ...*orm.Condition) int

	// Delete 按主键删除当前记录。
	// 返回受影响的行数，如果发生错误则返回 -1。
	Delete() int

	// IsValid 检查或设置对象的有效性。
	IsValid(value ...bool) bool

	// Clone 创建对象的拷贝，包括读取时的快照。
	Clone() IModel

	// Json 将对象转换为 JSON 字符串。
	Json() string

	// Equals 比较两个对象的所有数据库字段是否完全相等。
	Equals(model IModel) bool
}

// lobModel 是 Model 内部使用的方法集合。
type lobModel interface {
	afterLoad(info *modelInfo) bool
	cloneSnapshot()
}

// Model 实现了 IModel 接口的基础模型，所有的具体模型类型都应该嵌入此类型。
//
// 使用示例：
//
//	type Article struct {
//		XLob.Model[Article] `orm:"-" json:"-"`
//		ID    int    `orm:"column(id);pk;auto"`
//		Title string `orm:"column(title)"`
//		Body  string `orm:"column(body);type(text)" lob:"clob"`
//	}
type Model[T any] struct {
	this        IModel         `orm:"-" json:"-"` // 模型实例
	modelUnique string         `orm:"-" json:"-"` // 模型标识
	dataUnique  string         `orm:"-" json:"-"` // 数据标识
	isValid     bool           `orm:"-" json:"-"` // 有效标志
	snapshot    map[string]any `orm:"-" json:"-"` // 最近一次读取或写入后的列值，nil 表示新记录
}

// Ctor 初始化模型实例。
func (md *Model[T]) Ctor(obj any) {
	md.this = obj.(IModel)
	md.modelUnique = ""
	md.dataUnique = ""
	md.isValid = false
}

func (md *Model[T]) OnEncode() {}

func (md *Model[T]) OnDecode() {}

// AliasName 返回数据库别名，此方法需要被子类重写，默认会触发 panic。
func (md *Model[T]) AliasName() string { XLog.Panic("Alias name is nil."); return "" }

// TableName 返回数据表名称，此方法需要被子类重写，默认会触发 panic。
func (md *Model[T]) TableName() string { XLog.Panic("Table name is nil."); return "" }

func (md *Model[T]) ModelUnique() string {
	if XString.IsEmpty(md.modelUnique) {
		md.modelUnique = fmt.Sprintf("%v_%v", md.this.AliasName(), md.this.TableName())
	}
	return md.modelUnique
}

// DataUnique 返回数据记录的唯一标识，复合主键的值以下划线连接。
// 如果模型未注册，将返回空字符串。
func (md *Model[T]) DataUnique() string {
	if XString.IsEmpty(md.dataUnique) {
		info := getModelInfo(md.this)
		if info == nil {
			XLog.Error("XLob.Model.DataUnique(%v): model info is nil.", md.this.ModelUnique())
			return ""
		}
		var values []string
		for _, name := range info.meta.PrimaryKey() {
			values = append(values, fmt.Sprint(md.this.DataValue(info.meta.Column(name).Field)))
		}
		md.dataUnique = fmt.Sprintf("%v_%v", md.this.ModelUnique(), strings.Join(values, "_"))
	}
	return md.dataUnique
}

func (md *Model[T]) DataValue(field string) any {
	vtp := reflect.ValueOf(md.this).Elem()
	fld := vtp.FieldByName(field)
	if fld.IsValid() {
		return fld.Interface()
	}
	return nil
}

func (md *Model[T]) Count(cond ...*orm.Condition) int {
	if ormer := orm.NewOrmUsingDB(md.this.AliasName()); ormer == nil {
		XLog.Error("XLob.Model.Count(%v): failed to create orm instance of %v.", md.this.TableName(), md.this.AliasName())
		return -1
	} else {
		query := ormer.QueryTable(md.this)
		if len(cond) > 0 && cond[0] != nil {
			query = query.SetCond(cond[0])
		}
		count, err := query.Count()
		if err != nil {
			XLog.Warn("XLob.Model.Count(%v): %v", md.this.TableName(), err)
			return -1
		}
		return int(count)
	}
}

// Write 插入或更新当前记录。
// 未读取或写入过的对象视为新记录并执行插入，服务端生成的主键会回填至对象；
// 否则仅更新自上次读取以来变化的列，没有变化时返回 0。
func (md *Model[T]) Write() int {
	md.this.IsValid(true)
	info := getModelInfo(md.this)
	if info == nil {
		XLog.Error("XLob.Model.Write(%v): model info is nil.", md.this.TableName())
		return -1
	}
	writer, err := info.Writer()
	if err != nil {
		XLog.Error("XLob.Model.Write(%v): %v", md.this.TableName(), err)
		return -1
	}

	md.this.OnEncode()
	rec := md.record(info.meta)
	result, err := writer.Save(context.Background(), rec)
	if err != nil {
		XLog.Error("XLob.Model.Write(%v): %v", md.this.TableName(), err)
		return -1
	}
	if !result.Success {
		XLog.Error("XLob.Model.Write(%v): %v: %v", md.this.TableName(), result.Reason, result.Err)
		return -1
	}
	if result.Err != nil {
		XLog.Warn("XLob.Model.Write(%v): %v", md.this.TableName(), result.Err)
	}

	vtp := reflect.ValueOf(md.this).Elem()
	for _, name := range info.meta.PrimaryKey() {
		col := info.meta.Column(name)
		if value := rec.Get(name); value != nil {
			setField(vtp.FieldByName(col.Field), value)
		}
	}
	md.snapshot = rec.OldAttributes()
	md.dataUnique = ""
	return int(result.RowsAffected)
}

// Read 读取符合条件的记录，若不指定条件则使用主键作为查询条件。
// 读取成功后会重新读取大文本列并调用 OnDecode。
func (md *Model[T]) Read(cond ...*orm.Condition) bool {
	if ormer := orm.NewOrmUsingDB(md.this.AliasName()); ormer == nil {
		XLog.Error("XLob.Model.Read(%v): failed to create orm instance of %v.", md.this.TableName(), md.this.AliasName())
		return false
	} else {
		info := getModelInfo(md.this)
		if info == nil {
			XLog.Error("XLob.Model.Read(%v): model info is nil", md.this.TableName())
			return false
		}
		query := ormer.QueryTable(md.this)
		if len(cond) > 0 && cond[0] != nil {
			query = query.SetCond(cond[0])
		} else {
			ncond := orm.NewCondition()
			for _, name := range info.meta.PrimaryKey() {
				ncond = ncond.And(name, md.keyValue(info.meta.Column(name)))
			}
			query = query.SetCond(ncond)
		}
		that := md.this // query.One() 会修改对象，所以需要暂存指针
		e := query.One(that)
		md.this = that
		if e != nil {
			XLog.Warn("XLob.Model.Read(%v): %v", md.this.TableName(), e)
			return false
		}
		return md.afterLoad(info)
	}
}

func (md *Model[T]) List(rets any, cond ...*orm.Condition) int {
	if ormer := orm.NewOrmUsingDB(md.this.AliasName()); ormer == nil {
		XLog.Error("XLob.Model.List(%v): failed to create orm instance of %v.", md.this.TableName(), md.this.AliasName())
		return -1
	} else {
		val := reflect.ValueOf(rets)
		if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Slice {
			XLog.Error("XLob.Model.List(%v): rets must be a pointer to a slice.", md.this.TableName())
			return -1
		}
		info := getModelInfo(md.this)
		if info == nil {
			XLog.Error("XLob.Model.List(%v): model info is nil", md.this.TableName())
			return -1
		}

		query := ormer.QueryTable(md.this)
		if len(cond) > 0 && cond[0] != nil {
			query = query.SetCond(cond[0])
		}
		tcount, terr := query.All(val.Elem().Addr().Interface())
		if terr != nil {
			XLog.Warn("XLob.Model.List(%v): %v", md.this.TableName(), terr)
			return -1
		}

		for i := 0; i < val.Elem().Len(); i++ {
			ev := val.Elem().Index(i).Interface()
			model, ok := ev.(IModel)
			if !ok {
				continue
			}
			model.Ctor(ev)
			if lm, ok := ev.(lobModel); ok && !lm.afterLoad(info) {
				return -1
			}
		}
		return int(tcount)
	}
}

// Delete 按主键删除当前记录，删除后对象被标记为无效的新记录。
func (md *Model[T]) Delete() int {
	if ormer := orm.NewOrmUsingDB(md.this.AliasName()); ormer == nil {
		XLog.Error("XLob.Model.Delete(%v): failed to create orm instance of %v.", md.this.TableName(), md.this.AliasName())
		return -1
	} else {
		info := getModelInfo(md.this)
		if info == nil {
			XLog.Error("XLob.Model.Delete(%v): model info is nil", md.this.TableName())
			return -1
		}
		cond := orm.NewCondition()
		for _, name := range info.meta.PrimaryKey() {
			cond = cond.And(name, md.keyValue(info.meta.Column(name)))
		}
		count, err := ormer.QueryTable(md.this).SetCond(cond).Delete()
		if err != nil {
			XLog.Error("XLob.Model.Delete(%v): %v", md.this.TableName(), err)
			return -1
		}
		md.snapshot = nil
		md.this.IsValid(false)
		return int(count)
	}
}

func (md *Model[T]) IsValid(value ...bool) bool {
	if len(value) > 0 {
		md.isValid = value[0]
	}
	return md.isValid
}

func (md *Model[T]) Clone() IModel {
	dst := new(T)
	psrc := (*T)(unsafe.Pointer(reflect.ValueOf(md.this).Pointer()))
	pdst := (*T)(unsafe.Pointer(reflect.ValueOf(dst).Pointer()))
	if psrc == nil || pdst == nil {
		XLog.Error("XLob.Model.Clone(%v): invalid pointer.", md.this.TableName())
		return md.this
	}
	*pdst = *psrc

	if model, ok := any(dst).(IModel); ok {
		model.Ctor(dst)
		if lm, ok := model.(lobModel); ok {
			lm.cloneSnapshot()
		}
		model.OnDecode()
		model.IsValid(true)
		return model
	}
	return nil
}

func (md *Model[T]) Json() string {
	result, _ := XObject.ToJson(md.this)
	return result
}

func (md *Model[T]) Equals(model IModel) bool {
	if md.this == model {
		return true
	}
	if md.this == nil || model == nil {
		return false
	}
	info := getModelInfo(md.this)
	if info == nil {
		return false
	}
	for _, col := range info.meta.Columns {
		if !sameValue(md.this.DataValue(col.Field), model.DataValue(col.Field)) {
			return false
		}
	}
	return true
}

// afterLoad 重新读取大文本列，刷新快照并调用 OnDecode。
func (md *Model[T]) afterLoad(info *modelInfo) bool {
	if lobs := info.meta.LargeText(); len(lobs) > 0 {
		writer, err := info.Writer()
		if err != nil {
			XLog.Error("XLob.Model.Read(%v): %v", md.this.TableName(), err)
			return false
		}
		rec := NewRecord(info.meta)
		rec.attrs = md.values(info.meta)
		if err := writer.Read(context.Background(), rec); err != nil {
			XLog.Error("XLob.Model.Read(%v): reread large text failed: %v", md.this.TableName(), err)
			return false
		}
		vtp := reflect.ValueOf(md.this).Elem()
		for _, name := range lobs {
			setField(vtp.FieldByName(info.meta.Column(name).Field), rec.Get(name))
		}
	}
	md.snapshot = md.values(info.meta)
	md.dataUnique = ""
	md.this.IsValid(true)
	md.this.OnDecode()
	return true
}

func (md *Model[T]) cloneSnapshot() {
	if md.snapshot != nil {
		md.snapshot = copyAttrs(md.snapshot)
	}
}

// record 根据对象的当前字段和快照生成待写入的记录。
// 新记录中值为零的自增主键不会被写入，由服务端生成。
func (md *Model[T]) record(meta *Meta) *Record {
	rec := NewRecord(meta)
	rec.SetOldAttributes(md.snapshot)
	vtp := reflect.ValueOf(md.this).Elem()
	for _, col := range meta.Columns {
		fv := vtp.FieldByName(col.Field)
		if !fv.IsValid() {
			continue
		}
		if col.Pk && col.Auto && md.snapshot == nil && fv.IsZero() {
			continue
		}
		rec.attrs[col.Name] = fieldValue(fv)
	}
	return rec
}

// values 返回对象所有列的当前值。
func (md *Model[T]) values(meta *Meta) map[string]any {
	values := make(map[string]any, len(meta.Columns))
	vtp := reflect.ValueOf(md.this).Elem()
	for _, col := range meta.Columns {
		if fv := vtp.FieldByName(col.Field); fv.IsValid() {
			values[col.Name] = fieldValue(fv)
		}
	}
	return values
}

// keyValue 返回主键列的值，优先使用快照中的值。
func (md *Model[T]) keyValue(col *Column) any {
	if md.snapshot != nil {
		if value, ok := md.snapshot[col.Name]; ok {
			return value
		}
	}
	return md.this.DataValue(col.Field)
}

// fieldValue 将字段值转换为与 Column.Cast 一致的类型，保证与快照的比较稳定。
func fieldValue(fv reflect.Value) any {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(fv.Uint())
	case reflect.Float32, reflect.Float64:
		return fv.Float()
	case reflect.Bool:
		return fv.Bool()
	case reflect.String:
		return fv.String()
	default:
		return fv.Interface()
	}
}

// setField 将列值写回字段，类型不兼容时忽略。
func setField(fv reflect.Value, value any) bool {
	if !fv.IsValid() || !fv.CanSet() || value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	if fv.Kind() == reflect.String && rv.Kind() != reflect.String {
		fv.SetString(fmt.Sprint(value))
		return true
	}
	if rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
		return true
	}
	return false
}
