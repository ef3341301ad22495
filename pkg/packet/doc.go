// Package packet 实现 lanconnect 的线路数据包编解码
//
// 线路格式：每个数据包为一行 UTF-8 JSON，以单个换行符结尾：
//
//	{"id":1700000000000,"type":"kdeconnect.ping","body":{"message":"hi"}}\n
//
// 键顺序固定为 id、type、body，其后按需追加 payloadSize 与
// payloadTransferInfo。字符串中的 '/' 永不转义，以保证与其他独立实现
// 的字节级互通。
//
// body 是有序键值容器，值为标量标签联合（string | integer | boolean |
// double）。取值访问器对缺失键有明确默认值（整数 -1、布尔 false、
// 浮点 NaN、字符串 ""），需要区分"缺失"与"默认值"的调用方使用
// Lookup* 系列。
package packet
