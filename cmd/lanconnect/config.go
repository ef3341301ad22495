package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dep2p/go-lanconnect/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// EnvPrefix 环境变量前缀，键中的 "." 替换为 "_"
//
//	LANCONNECT_DEVICE_NAME=laptop
//	LANCONNECT_NETWORK_DISCOVERY_PORT=1716
//	LANCONNECT_SECURITY_PASSPHRASE=...
const EnvPrefix = "LANCONNECT"

// optionalKeys 默认 JSON 中因 omitempty 缺失、但允许由环境变量设置的键
var optionalKeys = map[string]interface{}{
	"device.id":                    "",
	"network.bind_address":         "",
	"network.static_addresses":     []string{},
	"security.passphrase":          "",
	"security.key_file":            "",
	"storage.in_memory":            false,
	"discovery.mdns.interface":     "",
	"metrics.listen_address":       "",
	"device.incoming_capabilities": []string{},
	"device.outgoing_capabilities": []string{},
}

// loadConfig 依次合并默认值、配置文件与环境变量
//
// 配置文件格式由扩展名决定（json/yaml/toml），path 为空时只用默认值与
// 环境变量。结果经 config.FromJSON 解码，Duration 字段沿用 "30s" 形式。
func loadConfig(path string) (*config.Config, error) {
	v := viper.New()

	defaults, err := defaultSettings()
	if err != nil {
		return nil, err
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, val := range optionalKeys {
		v.SetDefault(key, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	settings := make(map[string]interface{})
	for _, key := range v.AllKeys() {
		setNested(settings, key, typedValue(v, key, defaultFor(defaults, key)))
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return config.FromJSON(data)
}

// defaultSettings 将默认配置展开为 "a.b.c" 键
func defaultSettings() (map[string]interface{}, error) {
	data, err := config.ToJSON(config.NewConfig())
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	flat := make(map[string]interface{})
	flatten("", tree, flat)
	return flat, nil
}

func flatten(prefix string, tree map[string]interface{}, out map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = val
	}
}

func defaultFor(defaults map[string]interface{}, key string) interface{} {
	if val, ok := defaults[key]; ok {
		return val
	}
	return optionalKeys[key]
}

// typedValue 按默认值类型读取，环境变量中的字符串由 viper 转换
func typedValue(v *viper.Viper, key string, def interface{}) interface{} {
	switch def.(type) {
	case bool:
		return v.GetBool(key)
	case float64:
		return v.GetFloat64(key)
	case []interface{}, []string:
		if list := v.GetStringSlice(key); len(list) > 0 {
			return list
		}
		return nil
	case string:
		return v.GetString(key)
	default:
		return v.Get(key)
	}
}

func setNested(tree map[string]interface{}, key string, val interface{}) {
	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = val
}
