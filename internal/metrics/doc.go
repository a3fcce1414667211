// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP 请求与
数据库连接池两个维度。

# 概述

事件型指标由 Collector 通过 promauto 注册和记录；连接池的瞬时状态由
PoolCollector 在每次抓取时从快照读取，避免后台轮询与数据漂移。
所有指标按 namespace 隔离。

# 核心类型

  - Collector：HTTP 请求计数/耗时/大小，连接池状态迁移、健康检查、
    恢复结果计数。RecordStateTransition 可直接作为
    database.WithStateObserver 的回调。
  - PoolCollector：实现 prometheus.Collector，按 StatsSource 快照输出
    连接数（total/idle/active）、等待数、借还累计、平均与峰值等待、
    泄漏数、空闲占比、生命周期状态与运行时长。
  - StatsSource：快照来源接口，*database.PoolManager 满足该接口。
*/
package metrics
