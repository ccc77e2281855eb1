/*
Package schema 加载 OpenAPI 风格的契约文档，展开全部 $ref，并提取单个操作的
JSON 请求体 Schema。

# 概述

Loader 读取文件路径、http(s) URL 或原始字节（YAML / JSON），在保留文档顺序的
yaml.Node 树上递归替换 $ref，产出不可变的 Document。支持的引用形式：

  - "#/components/schemas/X"（RFC 6901，~0 / ~1 转义）
  - "common.yaml" 与 "common.yaml#/X"（相对引用文档所在位置）

缺失目标与循环引用返回 SchemaResolutionError，不会返回部分文档。

# 请求体提取

Document.RequestSchema 固定遍历
paths → path → method → requestBody → content → application/json → schema，
任一段缺失返回 OperationNotFoundError 并指出缺失段；method 大小写不敏感。

# 缓存与校验

  - CachedLoader: singleflight 合并并发加载，MemoryStore / RedisStore 存放解析结果
  - Loader.Lint: 基于 kin-openapi 的规范校验，附加请求体可合成性检查
*/
package schema
