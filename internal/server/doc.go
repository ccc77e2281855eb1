/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、优雅关闭与异步错误传播。

Manager 封装 net/http.Server。intentflow serve 启动两个实例：api（业务与 MCP 端点）
和 metrics（Prometheus /metrics，metrics_port 为 0 时不启动）。

  - Start 在后台 goroutine 中运行服务，监听失败同步返回
  - Wait 阻塞到 ctx 结束（通常来自 signal.NotifyContext）或服务异常退出，随后优雅关闭
  - Shutdown 在 ShutdownTimeout 内排空请求，重复调用为空操作
  - Addr 启动后返回实际监听地址，便于以 :0 启动测试
*/
package server
