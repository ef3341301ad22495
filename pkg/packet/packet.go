package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// ProtocolVersion 当前协议版本
	ProtocolVersion = 8

	// TypePrefix 当前数据包类型命名空间
	TypePrefix = "kdeconnect."

	// LegacyTypePrefix 旧版命名空间，解码时改写为 TypePrefix
	LegacyTypePrefix = "org.kde.kdeconnect."

	// TypeIdentity 身份包
	TypeIdentity = TypePrefix + "identity"

	// TypePair 配对包
	TypePair = TypePrefix + "pair"
)

// nowMillis 当前毫秒时间戳（测试可替换）
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// ============================================================================
//                              Packet
// ============================================================================

// Packet 带类型标签的消息
type Packet struct {
	// ID 包 ID，为 0 时序列化取当前毫秒时间
	ID int64

	// Type 命名空间类型标签，如 "kdeconnect.ping"
	Type string

	// Body 有序键值内容
	Body *Body

	// PayloadTransferInfo 负载传输信息，仅在携带二进制负载时存在
	PayloadTransferInfo *Body

	payloadSize    int64
	hasPayloadSize bool
}

// New 创建指定类型的数据包，ID 为当前毫秒时间
func New(typ string) *Packet {
	return &Packet{
		ID:   nowMillis(),
		Type: typ,
		Body: NewBody(),
	}
}

// SetPayloadSize 设置负载大小
func (p *Packet) SetPayloadSize(n int64) {
	p.payloadSize = n
	p.hasPayloadSize = true
}

// PayloadSize 返回负载大小及是否存在
func (p *Packet) PayloadSize() (int64, bool) {
	return p.payloadSize, p.hasPayloadSize
}

// HasPayload 是否携带二进制负载
func (p *Packet) HasPayload() bool {
	return p.hasPayloadSize && p.payloadSize != 0
}

// body 返回非 nil body
func (p *Packet) body() *Body {
	if p.Body == nil {
		p.Body = NewBody()
	}
	return p.Body
}

// 访问器代理到 Body，便于调用方直接在 Packet 上取值

// GetString 缺失时返回 ""
func (p *Packet) GetString(key string) string { return p.Body.GetString(key) }

// GetInt 缺失时返回 -1
func (p *Packet) GetInt(key string) int { return p.Body.GetInt(key) }

// GetLong 缺失时返回 -1
func (p *Packet) GetLong(key string) int64 { return p.Body.GetLong(key) }

// GetBool 缺失时返回 false
func (p *Packet) GetBool(key string) bool { return p.Body.GetBool(key) }

// GetDouble 缺失时返回 NaN
func (p *Packet) GetDouble(key string) float64 { return p.Body.GetDouble(key) }

// LookupBool 区分缺失与 false
func (p *Packet) LookupBool(key string) (bool, bool) { return p.Body.LookupBool(key) }

// Set 设置 body 中的标量
//
// 支持 string、int、int64、bool、float64、[]string；其他类型返回错误。
func (p *Packet) Set(key string, v any) error {
	b := p.body()
	switch x := v.(type) {
	case string:
		b.SetString(key, x)
	case int:
		b.SetInt(key, x)
	case int64:
		b.SetLong(key, x)
	case bool:
		b.SetBool(key, x)
	case float64:
		b.SetDouble(key, x)
	case []string:
		b.SetStringList(key, x)
	default:
		return fmt.Errorf("unsupported body value type %T for key %q", v, key)
	}
	return nil
}

// String 用于日志
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{id=%d type=%s keys=%d}", p.ID, p.Type, p.Body.Len())
}

// ============================================================================
//                              编解码
// ============================================================================

// wirePacket 字段顺序即线上键顺序
type wirePacket struct {
	ID                  int64  `json:"id"`
	Type                string `json:"type"`
	Body                *Body  `json:"body"`
	PayloadSize         *int64 `json:"payloadSize,omitempty"`
	PayloadTransferInfo *Body  `json:"payloadTransferInfo,omitempty"`
}

// Serialize 编码为一行 JSON，末尾带单个换行符
func Serialize(p *Packet) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil packet")
	}
	if p.Type == "" {
		return nil, fmt.Errorf("packet type is empty")
	}

	w := wirePacket{
		ID:   p.ID,
		Type: p.Type,
		Body: p.Body,
	}
	if w.ID == 0 {
		w.ID = nowMillis()
	}
	if w.Body == nil {
		w.Body = NewBody()
	}
	if p.hasPayloadSize {
		size := p.payloadSize
		w.PayloadSize = &size
	}
	if p.PayloadTransferInfo.Len() > 0 {
		w.PayloadTransferInfo = p.PayloadTransferInfo
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", p.Type, err)
	}
	// Encoder 已追加唯一的 '\n'
	return buf.Bytes(), nil
}

// inboundPacket 解码用结构，区分缺失字段
type inboundPacket struct {
	ID                  json.RawMessage `json:"id"`
	Type                *string         `json:"type"`
	Body                *Body           `json:"body"`
	PayloadSize         *json.Number    `json:"payloadSize"`
	PayloadTransferInfo *Body           `json:"payloadTransferInfo"`
}

// Deserialize 解析一行 JSON 为 Packet
//
// 非法 JSON、缺少 type 或 id 时返回包装 types.ErrParse 的错误。
func Deserialize(data []byte) (*Packet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", types.ErrParse)
	}

	var in inboundPacket
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}
	if in.Type == nil || *in.Type == "" {
		return nil, fmt.Errorf("%w: missing type", types.ErrParse)
	}
	id, err := parseID(in.ID)
	if err != nil {
		return nil, err
	}

	p := &Packet{
		ID:                  id,
		Type:                NormalizeType(*in.Type),
		Body:                in.Body,
		PayloadTransferInfo: in.PayloadTransferInfo,
	}
	if p.Body == nil {
		p.Body = NewBody()
	}
	if in.PayloadSize != nil {
		size, err := in.PayloadSize.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid payloadSize: %v", types.ErrParse, err)
		}
		p.SetPayloadSize(size)
	}
	return p, nil
}

// parseID 解析 id 字段，兼容以字符串形式发送的 id
func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing id", types.ErrParse)
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: invalid id: %v", types.ErrParse, err)
		}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", types.ErrParse, s)
	}
	return id, nil
}

// NormalizeType 将旧命名空间前缀改写为当前前缀
func NormalizeType(typ string) string {
	if rest, ok := strings.CutPrefix(typ, LegacyTypePrefix); ok {
		return TypePrefix + rest
	}
	return typ
}
