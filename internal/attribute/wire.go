package attribute

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Item 表中的一条记录：属性名到属性值的有序映射
type Item []Field

// Get 按名称查找属性
func (it Item) Get(name string) (Value, bool) {
	return Map(it).Get(name)
}

// MarshalJSON 输出线上格式的对象，属性顺序保持不变
func (it Item) MarshalJSON() ([]byte, error) {
	return marshalFields(it)
}

// UnmarshalJSON 按原始顺序解析线上格式的记录
func (it *Item) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*it = nil
		return nil
	}
	members, err := decodeObject(data)
	if err != nil {
		return err
	}
	out := make(Item, 0, len(members))
	for _, m := range members {
		v, err := ParseValue(m.raw)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", m.name, err)
		}
		out = append(out, Field{Name: m.name, Value: v})
	}
	*it = out
	return nil
}

// ParseValue 解析单个线上格式的属性值。
// 只有非法 JSON 才返回错误；结构合法但不属于任何已知标签的值以 Raw 返回。
func ParseValue(data []byte) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, errors.New("attribute: invalid JSON")
	}
	return parseValid(trimmed), nil
}

func parseValid(data []byte) Value {
	raw := Raw(append([]byte(nil), data...))
	if len(data) == 0 || data[0] != '{' {
		return raw
	}
	members, err := decodeObject(data)
	if err != nil || len(members) != 1 {
		return raw
	}

	m := members[0]
	payload := bytes.TrimSpace(m.raw)
	switch Tag(m.name) {
	case TagString:
		var s string
		if json.Unmarshal(payload, &s) == nil {
			return String(s)
		}
	case TagNumber:
		var s string
		if json.Unmarshal(payload, &s) == nil {
			return Number(s)
		}
		// 部分工具会把数字直接输出为 JSON 数值
		if isJSONNumber(string(payload)) {
			return Number(payload)
		}
	case TagBoolean:
		var b bool
		if json.Unmarshal(payload, &b) == nil {
			return Boolean(b)
		}
	case TagMap:
		fields, err := decodeObject(payload)
		if err != nil {
			break
		}
		out := make(Map, 0, len(fields))
		for _, f := range fields {
			out = append(out, Field{Name: f.name, Value: parseValid(bytes.TrimSpace(f.raw))})
		}
		return out
	case TagList:
		var elems []json.RawMessage
		if json.Unmarshal(payload, &elems) != nil || elems == nil {
			break
		}
		out := make(List, 0, len(elems))
		for _, e := range elems {
			out = append(out, parseValid(bytes.TrimSpace(e)))
		}
		return out
	}
	return raw
}

type member struct {
	name string
	raw  json.RawMessage
}

// decodeObject 按出现顺序返回对象成员。重复键以最后一次出现的值为准，位置保持首次出现处。
func decodeObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("attribute: expected JSON object")
	}

	var out []member
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New("attribute: expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if i, dup := index[name]; dup {
			out[i].raw = raw
			continue
		}
		index[name] = len(out)
		out = append(out, member{name: name, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}
