package attribute

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind 编辑器中属性节点的类型，同时接受长名称与线上标签
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindMap     Kind = "map"
	KindList    Kind = "list"
)

// tag 将节点类型归一化为线上标签；未知类型返回 false。
func (k Kind) tag() (Tag, bool) {
	switch strings.TrimSpace(string(k)) {
	case "string", "S":
		return TagString, true
	case "number", "N":
		return TagNumber, true
	case "boolean", "bool", "BOOL":
		return TagBoolean, true
	case "map", "M":
		return TagMap, true
	case "list", "L":
		return TagList, true
	}
	return "", false
}

// Node 编辑器中的树形属性描述。
// 标量节点使用 Value；map/list 节点使用 Children，list 成员的 Name 被忽略。
type Node struct {
	Name     string `json:"key"`
	Kind     Kind   `json:"type"`
	Value    string `json:"value,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// Encode 将编辑器节点编码为属性值。
// 无法识别的类型以及未给出 Children 的 map/list 返回 false，调用方应省略该属性。
// 编辑过程中的不完整输入是常态，因此这里不返回错误。
func Encode(n Node) (Value, bool) {
	tag, ok := n.Kind.tag()
	if !ok {
		return nil, false
	}

	switch tag {
	case TagString:
		return String(n.Value), true
	case TagNumber:
		return Number(n.Value), true
	case TagBoolean:
		return Boolean(n.Value == "true"), true
	case TagMap:
		if n.Children == nil {
			return nil, false
		}
		m := make(Map, 0, len(n.Children))
		for _, child := range n.Children {
			if child.Name == "" {
				continue
			}
			if v, ok := Encode(child); ok {
				m = append(m, Field{Name: child.Name, Value: v})
			}
		}
		return m, true
	case TagList:
		if n.Children == nil {
			return nil, false
		}
		l := make(List, 0, len(n.Children))
		for _, child := range n.Children {
			if v, ok := Encode(child); ok {
				l = append(l, v)
			}
		}
		return l, true
	}
	return nil, false
}

// EncodeItem 将顶层节点列表编码为一条记录，跳过空名称与无法编码的节点。
func EncodeItem(nodes []Node) Item {
	item := make(Item, 0, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			continue
		}
		if v, ok := Encode(n); ok {
			item = append(item, Field{Name: n.Name, Value: v})
		}
	}
	return item
}

// Member 解码后对象中的一个成员
type Member struct {
	Key   string
	Value any
}

// Object 解码后的有序对象，序列化为普通 JSON 对象
type Object []Member

// Get 按键查找成员
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// MarshalJSON 按成员顺序输出 JSON 对象
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode 将属性值转换为便于展示的普通值：
// String 为 string，Number 为 json.Number（无法解析时保留原字符串），
// Boolean 为 bool，Map 为 Object，List 为 []any。
// {"NULL": true} 解码为 nil，其余无法识别的值原样返回 json.RawMessage。
func Decode(v Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case String:
		return string(x)
	case Number:
		s := strings.TrimSpace(string(x))
		if isJSONNumber(s) {
			return json.Number(s)
		}
		return string(x)
	case Boolean:
		return bool(x)
	case Map:
		return decodeFields(x)
	case List:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, Decode(e))
		}
		return out
	case Raw:
		if isNull(x) {
			return nil
		}
		return json.RawMessage(x)
	}
	return nil
}

// DecodeItem 将一条记录解码为有序对象
func DecodeItem(it Item) Object {
	return decodeFields(it)
}

func decodeFields(fields []Field) Object {
	out := make(Object, 0, len(fields))
	for _, f := range fields {
		out = append(out, Member{Key: f.Name, Value: Decode(f.Value)})
	}
	return out
}

func isNull(r Raw) bool {
	members, err := decodeObject(r)
	return err == nil && len(members) == 1 && members[0].name == "NULL"
}
