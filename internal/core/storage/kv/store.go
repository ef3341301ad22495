// Package kv 提供带前缀隔离的 KV 存储抽象层
//
// Store 在底层存储引擎之上提供命名空间隔离，
// 每个组件可以使用不同的前缀来隔离数据。
//
// # 键空间设计
//
//   - c/ - 证书存储（密封记录）
//   - c/peer/<id>   对端证书
//   - c/info/<id>   对端设备名称与类型
//   - c/trust/<id>  信任列表
//   - c/local/      本机身份
//   - c/meta/       盐值、迁移标志
//   - legacy/       旧版明文记录（迁移后删除）
//
// # 使用示例
//
//	eng, _ := badger.New(engine.DefaultConfig(path))
//	certs := kv.New(eng, []byte("c/"))
//	certs.Put([]byte("peer/abc"), sealed) // 实际键: c/peer/abc
//
// # 值编码
//
// WithCodec 返回共享前缀、但读写值时经过 Codec 变换的 Store，
// 证书存储以此对每条记录做 AEAD 密封：
//
//	sealed := certs.WithCodec(aead)
//	sealed.Sub([]byte("trust/")).PutJSON([]byte(id), rec)
package kv

import (
	"encoding/json"

	"github.com/dep2p/go-lanconnect/pkg/interfaces"
)

// Codec 值编解码
//
// key 为带前缀的完整存储键，可作为关联数据把值绑定到键上。
type Codec interface {
	Encode(key, value []byte) ([]byte, error)
	Decode(key, data []byte) ([]byte, error)
}

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine interfaces.Engine
	prefix []byte
	codec  Codec
}

// New 创建新的 KVStore
func New(eng interfaces.Engine, prefix []byte) *Store {
	return &Store{
		engine: eng,
		prefix: append([]byte(nil), prefix...),
	}
}

// Sub 返回在当前前缀下追加子前缀的 Store，沿用当前 Codec
func (s *Store) Sub(prefix []byte) *Store {
	sub := New(s.engine, s.prefixKey(prefix))
	sub.codec = s.codec
	return sub
}

// WithCodec 返回同一前缀下以 c 编解码值的 Store
func (s *Store) WithCodec(c Codec) *Store {
	return &Store{engine: s.engine, prefix: s.prefix, codec: c}
}

// Prefix 返回当前前缀
func (s *Store) Prefix() []byte {
	return s.prefix
}

// prefixKey 为键添加前缀
func (s *Store) prefixKey(key []byte) []byte {
	if len(s.prefix) == 0 {
		return key
	}
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

// stripPrefix 从键中移除前缀
func (s *Store) stripPrefix(key []byte) []byte {
	if len(s.prefix) == 0 || len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// ============================================================================
//                              基础操作
// ============================================================================

// Get 获取值
func (s *Store) Get(key []byte) ([]byte, error) {
	full := s.prefixKey(key)
	data, err := s.engine.Get(full)
	if err != nil || s.codec == nil {
		return data, err
	}
	return s.codec.Decode(full, data)
}

// Put 设置值
func (s *Store) Put(key, value []byte) error {
	full := s.prefixKey(key)
	if s.codec != nil {
		encoded, err := s.codec.Encode(full, value)
		if err != nil {
			return err
		}
		value = encoded
	}
	return s.engine.Put(full, value)
}

// Delete 删除键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并存储 JSON 值
func (s *Store) PutJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// GetString 获取字符串值
func (s *Store) GetString(key []byte) (string, error) {
	data, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutString 存储字符串值
func (s *Store) PutString(key []byte, value string) error {
	return s.Put(key, []byte(value))
}

// ============================================================================
//                              扫描操作
// ============================================================================

// PrefixScan 按键序遍历子前缀下的键值对
//
// 回调收到的键已去除 Store 前缀，值已解码；返回 false 停止遍历。
func (s *Store) PrefixScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	err := s.engine.Iterate(s.prefixKey(subPrefix), func(k, v []byte) error {
		if s.codec != nil {
			decoded, err := s.codec.Decode(k, v)
			if err != nil {
				return err
			}
			v = decoded
		}
		if !fn(s.stripPrefix(k), v) {
			return errStopScan
		}
		return nil
	})
	if err == errStopScan {
		return nil
	}
	return err
}

// Keys 返回子前缀下的所有键（已去除 Store 前缀），不解码值
func (s *Store) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.engine.Iterate(s.prefixKey(subPrefix), func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), s.stripPrefix(k)...))
		return nil
	})
	return keys, err
}

// DeletePrefix 删除子前缀下的所有键
func (s *Store) DeletePrefix(subPrefix []byte) error {
	keys, err := s.Keys(subPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

type stopScan struct{}

func (stopScan) Error() string { return "stop scan" }

var errStopScan error = stopScan{}
