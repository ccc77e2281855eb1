/*
包 history 保存每次分析的结果（请求文本、操作、就绪状态、缺失字段、
建议载荷），供 GET /api/v1/analyses 查询。

表结构由 internal/migration 的 SQL 迁移创建，GormStore.AutoMigrate
用于本地或测试环境。历史关闭时使用 NopStore。
*/
package history
