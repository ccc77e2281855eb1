/*
包 database 负责分析历史库的连接：按驱动（postgres、mysql、sqlite）
打开 GORM 连接，并由 PoolManager 管理连接池参数、后台健康检查、
连接数指标上报以及带退避重试的事务执行。

sqlite 走 gorm.io/driver/sqlite 方言，底层驱动替换为 modernc.org/sqlite
（纯 Go，无需 cgo），与 internal/migration 的 golang-migrate sqlite 驱动一致。
*/
package database
