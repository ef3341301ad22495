// Package interfaces - Storage 存储引擎接口
//
// 核心只定义存储 schema（以设备 ID 为键的数据块），存储机制由注入的
// Engine 实现决定。默认实现基于 BadgerDB。
package interfaces

// Engine 存储引擎基础接口
//
// 线程安全：实现必须保证所有方法的线程安全性。
type Engine interface {
	// Get 获取指定键的值
	//
	// 返回值的副本；键不存在时返回 ErrNotFound。
	Get(key []byte) ([]byte, error)

	// Put 设置键值对，键已存在时覆盖
	Put(key, value []byte) error

	// Delete 删除指定键（幂等）
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// Iterate 按键序遍历具有指定前缀的键值对
	//
	// fn 收到的切片是副本；fn 返回错误时遍历终止并返回该错误。
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	// Close 关闭存储引擎，多次调用安全
	Close() error
}
