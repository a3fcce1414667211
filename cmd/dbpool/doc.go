/*
Package main 提供 dbpool 服务端程序入口。

# 概述

cmd/dbpool 加载配置、初始化数据库连接池，并通过 HTTP 暴露健康检查、
就绪探针与统计快照，另起独立端口暴露 Prometheus 指标。

# 子命令

  - serve   启动服务，SIGINT/SIGTERM 后依次关闭 HTTP 服务器、Supervisor、连接池
  - probe   初始化连接池，输出一次 JSON 健康报告后关闭；unhealthy 时退出码为 1
  - health  请求运行中服务的 /health，非 200 时退出码为 1
  - version 输出构建注入的版本信息

# 中间件链

Recovery → RequestID → SecurityHeaders → OTelTracing → RequestLogger →
MetricsMiddleware → RateLimiter（基于 IP）。
*/
package main
