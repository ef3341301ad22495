// Package storage 提供统一的持久化存储服务
//
// 所有持久化数据（本机身份、对端证书、信任列表）写入同一个 BadgerDB
// 实例，通过 kv.Store 的键前缀隔离。测试与临时节点使用内存模式。
//
//	storage/
//	├── engine/          配置与错误
//	│   └── badger/      BadgerDB 实现 (interfaces.Engine)
//	└── kv/              前缀隔离 Store
package storage
