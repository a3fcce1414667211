// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 dbpool 运维 HTTP 端点的请求处理器实现。

# 概述

handlers 包把连接池管理器的健康报告与统计快照暴露为 JSON 端点，
供负载均衡、Kubernetes 探针与运维人员查询。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - HealthHandler    — /health、/healthz、/ready、/stats、/version
  - PoolSource       — 处理器依赖的连接池视图，由 database.PoolManager 实现
  - HealthRecorder   — 健康检查结果记录，由 metrics.Collector 实现
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、suggestion、retryable
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码与响应大小
  - HealthCheck      — 可插拔就绪检查接口

# 状态码约定

  - /health：healthy 与 degraded 返回 200，unhealthy 返回 503
  - /ready：连接池处于 healthy 或 degraded 且所有就绪检查通过时返回 200
  - 连接池错误码映射：POOL_CLOSED / POOL_NOT_INITIALIZED / POOL_UNAVAILABLE → 503，
    POOL_ACQUIRE_TIMEOUT → 504，POOL_INVALID_STATE → 409，其余 → 500
*/
package handlers
