// Package config 提供 intentflow 的配置管理。
//
// 配置按 默认值 → YAML 文件 → 环境变量（INTENTFLOW_ 前缀）的顺序叠加，
// 最后由 Validate 统一校验。各子系统只接收自己的配置段。
package config
