/*
包 cache 封装 go-redis 客户端，为 Schema 文档缓存提供共享的 Redis 存取。

Manager 负责连接生命周期：创建时 Ping 校验、后台定时健康检查
（结果通过 Healthy 暴露给就绪探针）、Close 时等待检查协程退出。
键不存在时 Get 返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
