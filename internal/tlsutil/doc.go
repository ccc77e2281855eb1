// Package tlsutil 提供集中式的出站 HTTP 客户端配置：
// TLS 1.2+、仅 AEAD 密码套件、有限次数的重定向。
// Schema 远程文档拉取与下游请求执行共用此客户端。
package tlsutil
