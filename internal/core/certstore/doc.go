// Package certstore 管理本机身份证书与对端证书
//
// 所有记录经 XChaCha20-Poly1305 密封后写入 kv.Store，密钥由口令经
// Argon2id 派生，未配置口令时使用数据目录下的随机密钥文件。
//
// 键空间（相对 "c/"）：
//
//	local/cert   本机证书 DER
//	local/key    本机私钥 PKCS8 DER
//	peer/<id>    对端证书 DER
//	info/<id>    对端名称与类型 JSON
//	trust/<id>   信任记录
//	meta/salt    Argon2id 盐（明文）
//	meta/check   口令校验记录
//	meta/migrated 旧版数据迁移完成标志
//
// 旧版明文记录位于 "legacy/" 下，由 MigrateIfNeeded 迁移。
package certstore
