// Package interfaces 定义 lanconnect 组件之间的公共接口
//
// 具体实现位于 internal/ 下；本包只包含接口与函数类型，
// 便于在测试中以 tests/mocks 中的手写 mock 替换。
package interfaces
