package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Body 有序键值容器
//
// 保留插入顺序；覆盖已有键时位置不变。非并发安全。
type Body struct {
	keys   []string
	values map[string]Value
}

// NewBody 创建空 body
func NewBody() *Body {
	return &Body{values: make(map[string]Value)}
}

// Len 返回键数量
func (b *Body) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys 按插入顺序返回所有键
func (b *Body) Keys() []string {
	if b == nil {
		return nil
	}
	return slices.Clone(b.keys)
}

// Has 检查键是否存在
func (b *Body) Has(key string) bool {
	if b == nil {
		return false
	}
	_, ok := b.values[key]
	return ok
}

// Get 获取原始值
func (b *Body) Get(key string) (Value, bool) {
	if b == nil {
		return Value{}, false
	}
	v, ok := b.values[key]
	return v, ok
}

// Set 设置值
func (b *Body) Set(key string, v Value) {
	if b.values == nil {
		b.values = make(map[string]Value)
	}
	if _, exists := b.values[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
}

// Delete 删除键
func (b *Body) Delete(key string) {
	if _, ok := b.values[key]; !ok {
		return
	}
	delete(b.values, key)
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == key })
}

// Equal 按键集合与值比较（不比较顺序）
func (b *Body) Equal(o *Body) bool {
	if b.Len() != o.Len() {
		return false
	}
	for _, k := range b.Keys() {
		ov, ok := o.Get(k)
		if !ok || !b.values[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Clone 深拷贝
func (b *Body) Clone() *Body {
	c := NewBody()
	for _, k := range b.Keys() {
		c.Set(k, b.values[k])
	}
	return c
}

// ============================================================================
//                              取值访问器
// ============================================================================

// GetString 缺失时返回 ""
func (b *Body) GetString(key string) string {
	return b.GetStringOr(key, "")
}

// GetStringOr 缺失时返回 def
func (b *Body) GetStringOr(key, def string) string {
	if s, ok := b.LookupString(key); ok {
		return s
	}
	return def
}

// LookupString 区分缺失与空字符串
func (b *Body) LookupString(key string) (string, bool) {
	v, ok := b.Get(key)
	if !ok {
		return "", false
	}
	return v.AsString(), true
}

// GetInt 缺失或无法转换时返回 -1
func (b *Body) GetInt(key string) int {
	return b.GetIntOr(key, -1)
}

// GetIntOr 缺失或无法转换时返回 def
func (b *Body) GetIntOr(key string, def int) int {
	if i, ok := b.LookupInt(key); ok {
		return i
	}
	return def
}

// LookupInt 区分缺失与默认值
func (b *Body) LookupInt(key string) (int, bool) {
	i, ok := b.LookupLong(key)
	if !ok || i > math.MaxInt || i < math.MinInt {
		return 0, false
	}
	return int(i), true
}

// GetLong 缺失或无法转换时返回 -1
func (b *Body) GetLong(key string) int64 {
	if i, ok := b.LookupLong(key); ok {
		return i
	}
	return -1
}

// LookupLong 区分缺失与默认值
func (b *Body) LookupLong(key string) (int64, bool) {
	v, ok := b.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// GetBool 缺失或无法转换时返回 false
func (b *Body) GetBool(key string) bool {
	return b.GetBoolOr(key, false)
}

// GetBoolOr 缺失或无法转换时返回 def
func (b *Body) GetBoolOr(key string, def bool) bool {
	if v, ok := b.LookupBool(key); ok {
		return v
	}
	return def
}

// LookupBool 区分缺失与 false
func (b *Body) LookupBool(key string) (bool, bool) {
	v, ok := b.Get(key)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// GetDouble 缺失或无法转换时返回 NaN
func (b *Body) GetDouble(key string) float64 {
	if f, ok := b.LookupDouble(key); ok {
		return f
	}
	return math.NaN()
}

// LookupDouble 区分缺失与默认值
func (b *Body) LookupDouble(key string) (float64, bool) {
	v, ok := b.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsDouble()
}

// GetStringList 读取以 JSON 数组文本保存的字符串列表，缺失或非法时返回 nil
func (b *Body) GetStringList(key string) []string {
	list, _ := b.LookupStringList(key)
	return list
}

// LookupStringList 区分缺失与空列表
func (b *Body) LookupStringList(key string) ([]string, bool) {
	v, ok := b.Get(key)
	if !ok || v.kind != KindString {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal([]byte(v.s), &list); err != nil {
		return nil, false
	}
	if list == nil {
		list = []string{}
	}
	return list, true
}

// GetStringSet 读取字符串集合，缺失或非法时返回 nil
func (b *Body) GetStringSet(key string) map[string]struct{} {
	list, ok := b.LookupStringList(key)
	if !ok {
		return nil
	}
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// ============================================================================
//                              设值
// ============================================================================

// SetString 设置字符串
func (b *Body) SetString(key, v string) { b.Set(key, StringValue(v)) }

// SetInt 设置整数
func (b *Body) SetInt(key string, v int) { b.Set(key, IntValue(int64(v))) }

// SetLong 设置 64 位整数
func (b *Body) SetLong(key string, v int64) { b.Set(key, IntValue(v)) }

// SetBool 设置布尔值
func (b *Body) SetBool(key string, v bool) { b.Set(key, BoolValue(v)) }

// SetDouble 设置浮点数
func (b *Body) SetDouble(key string, v float64) { b.Set(key, DoubleValue(v)) }

// SetStringList 设置字符串列表（线上为 JSON 数组）
func (b *Body) SetStringList(key string, list []string) {
	if list == nil {
		list = []string{}
	}
	js, err := json.Marshal(list)
	if err != nil {
		return
	}
	normalized, err := normalizeJSON(js)
	if err != nil {
		return
	}
	b.Set(key, rawJSONValue(normalized))
}

// SetStringSet 设置字符串集合（按字典序输出）
func (b *Body) SetStringSet(key string, set map[string]struct{}) {
	list := make([]string, 0, len(set))
	for s := range set {
		list = append(list, s)
	}
	sort.Strings(list)
	b.SetStringList(key, list)
}

// ============================================================================
//                              JSON
// ============================================================================

// MarshalJSON 按插入顺序输出 JSON 对象
func (b *Body) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendJSONString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := b.values[k].appendJSON(&buf); err != nil {
			return nil, fmt.Errorf("body key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析 JSON 对象并保留键顺序
//
// null 值被忽略；嵌套数组/对象以 JSON 文本形式保存为字符串。
func (b *Body) UnmarshalJSON(data []byte) error {
	b.keys = nil
	b.values = make(map[string]Value)

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("body is not an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected body key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, present, err := parseValue(raw)
		if err != nil {
			return fmt.Errorf("body key %q: %w", key, err)
		}
		if present {
			b.Set(key, v)
		}
	}

	_, err = dec.Token()
	return err
}
