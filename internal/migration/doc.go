/*
包 migration 管理分析历史表（analyses）的版本化结构变更，基于
golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 文件通过 embed 内嵌在 migrations/<dialect>/ 下。SQLite
使用 golang-migrate 的 sqlite 驱动（modernc.org/sqlite，纯 Go）。

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、Version、
    Status、Info。
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 构建。
  - CLI：`intentflow migrate` 子命令的格式化输出层。
*/
package migration
