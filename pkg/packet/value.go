package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind 标量类型标签
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindDouble
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Value body 中的标量值
//
// raw 标记字符串内容本身是一段 JSON（数组或对象）：对调用方它仍是
// KindString，序列化时按原样输出，保证列表字段以 JSON 数组形式上线。
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
	f    float64
	raw  bool
}

// StringValue 创建字符串值
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue 创建整数值
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// BoolValue 创建布尔值
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// DoubleValue 创建浮点值
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }

// rawJSONValue 创建承载 JSON 数组/对象文本的字符串值
func rawJSONValue(js string) Value { return Value{kind: KindString, s: js, raw: true} }

// Kind 返回类型标签
func (v Value) Kind() Kind { return v.kind }

// AsString 转换为字符串
//
// 非字符串值按 JSON 文本形式转换，始终成功。
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDouble:
		return formatDouble(v.f)
	default:
		return ""
	}
}

// AsInt 转换为整数；浮点截断，字符串尝试解析
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return 0, false
		}
		return int64(v.f), true
	case KindString:
		if v.raw {
			return 0, false
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// AsBool 转换为布尔值；字符串仅接受 "true"/"false"
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		switch strings.ToLower(v.s) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// AsDouble 转换为浮点数
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		if v.raw {
			return 0, false
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Equal 比较类型与内容
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	}
	return false
}

// String 实现 fmt.Stringer
func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.kind, v.AsString())
}

// appendJSON 将值以 JSON 形式追加到 buf
func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindString:
		if v.raw {
			buf.WriteString(v.s)
			return nil
		}
		return appendJSONString(buf, v.s)
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("unsupported double value %v", v.f)
		}
		buf.WriteString(formatDouble(v.f))
	}
	return nil
}

// formatDouble 格式化浮点数，整数值保留 ".0" 以便解码后仍为 double
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// appendJSONString 编码 JSON 字符串，不转义 '/' 与 HTML 字符
func appendJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// parseValue 将 body 中的原始 JSON 值解析为 Value
//
// 返回 ok=false 表示 null，调用方应忽略该键。
func parseValue(raw json.RawMessage) (Value, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, false, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case 'n':
		return Value{}, false, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, false, err
		}
		return StringValue(s), true, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, false, err
		}
		return BoolValue(b), true, nil
	case '[', '{':
		js, err := normalizeJSON(trimmed)
		if err != nil {
			return Value{}, false, err
		}
		return rawJSONValue(js), true, nil
	default:
		num := string(trimmed)
		if i, err := strconv.ParseInt(num, 10, 64); err == nil {
			return IntValue(i), true, nil
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("invalid number %q", num)
		}
		return DoubleValue(f), true, nil
	}
}

// normalizeJSON 重新编码嵌套 JSON，去除多余空白与转义的 '/'
func normalizeJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(out.Bytes(), []byte{'\n'})), nil
}
