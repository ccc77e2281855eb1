/*
包 downstream 把合成好的请求载荷发送到配置的下游服务（base_url + 操作路径），
返回解码后的 JSON 响应。

网络错误、超时与非 2xx 响应不会以 error 形式向上传播，而是转换为带
Error/Code 的 Result；调用方可用 Result.Value() 得到 {"error": message}。
429 与 5xx、连接失败按指数退避重试，发送前经过 x/time/rate 客户端限流。
*/
package downstream
