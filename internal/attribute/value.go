// Package attribute 实现表存储使用的带标签属性值及其编解码。
//
// 属性值是一个封闭的和类型：String、Number、Boolean、Map、List 各自对应
// 线上格式中的一个标签（S、N、BOOL、M、L），每个值只填充其标签对应的负载。
// 无法识别的线上值以 Raw 原样保留。
package attribute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Tag 线上格式中的类型标签
type Tag string

const (
	TagString  Tag = "S"
	TagNumber  Tag = "N"
	TagBoolean Tag = "BOOL"
	TagMap     Tag = "M"
	TagList    Tag = "L"
	// TagRaw 表示无法识别的线上值
	TagRaw Tag = ""
)

// Value 属性值。只有本包中的类型实现该接口。
type Value interface {
	Tag() Tag
	json.Marshaler
	sealed()
}

// String 字符串值
type String string

// Number 数值，以十进制字符串保存以避免精度损失
type Number string

// Boolean 布尔值
type Boolean bool

// Field Map 中的一个具名成员
type Field struct {
	Name  string
	Value Value
}

// Map 按声明顺序保存的具名成员集合
type Map []Field

// List 有序的值序列
type List []Value

// Raw 未识别的线上值，编码时原样输出
type Raw json.RawMessage

func (String) Tag() Tag  { return TagString }
func (Number) Tag() Tag  { return TagNumber }
func (Boolean) Tag() Tag { return TagBoolean }
func (Map) Tag() Tag     { return TagMap }
func (List) Tag() Tag    { return TagList }
func (Raw) Tag() Tag     { return TagRaw }

func (String) sealed()  {}
func (Number) sealed()  {}
func (Boolean) sealed() {}
func (Map) sealed()     {}
func (List) sealed()    {}
func (Raw) sealed()     {}

// Get 按名称查找成员
func (m Map) Get(name string) (Value, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON 输出 {"S": "..."}
func (s String) MarshalJSON() ([]byte, error) {
	return tagged(TagString, string(s))
}

// MarshalJSON 输出 {"N": "..."}
func (n Number) MarshalJSON() ([]byte, error) {
	return tagged(TagNumber, string(n))
}

// MarshalJSON 输出 {"BOOL": true}
func (b Boolean) MarshalJSON() ([]byte, error) {
	return tagged(TagBoolean, bool(b))
}

// MarshalJSON 输出 {"M": {...}}，成员顺序保持不变
func (m Map) MarshalJSON() ([]byte, error) {
	body, err := marshalFields(m)
	if err != nil {
		return nil, err
	}
	return wrap(TagMap, body), nil
}

// MarshalJSON 输出 {"L": [...]}
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalValue(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return wrap(TagList, buf.Bytes()), nil
}

// MarshalJSON 原样输出
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

func tagged(tag Tag, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return wrap(tag, b), nil
}

func wrap(tag Tag, body []byte) []byte {
	out := make([]byte, 0, len(body)+len(tag)+5)
	out = append(out, '{')
	out = strconv.AppendQuote(out, string(tag))
	out = append(out, ':')
	out = append(out, body...)
	out = append(out, '}')
	return out
}

func marshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return v.MarshalJSON()
}

func marshalFields(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		if f.Value == nil {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		b, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", f.Name, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
