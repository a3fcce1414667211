// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供受管理的数据库连接池：配置校验、连接预热校验、
借还统计、健康分类、泄漏检测、故障恢复与有序关闭。

# 概述

PoolManager 在 DriverPool 抽象之上管理连接池生命周期。DriverPool
有两种实现：SQLDriverPool 通过 GORM 方言（postgres、mysql、sqlite）
打开 database/sql 连接池；PgxDriverPool 直接使用 pgxpool。

生命周期状态：

	initializing → healthy ⇄ degraded ⇄ unhealthy → recovering → healthy
	任意非终止状态 → shutting_down → terminated

# 核心类型

  - PoolConfig：经过校验的不可变配置，由 NewPoolConfig 或
    ParsePoolConfig 创建，所有违规项一次性报告。
  - PoolManager：Initialize、Acquire、WithConn、WithTransaction、
    GetStatistics、HealthCheck、Recover、Shutdown。
  - Lease：借出的连接，Release 可重复调用。
  - Snapshot：统计快照；Classify 将快照映射为 HealthStatus。
  - Supervisor：定时健康检查，unhealthy 时触发 Recover。
  - Error：带错误码的结构化错误，配合 errors.Is 与哨兵错误使用。

# 健康分类

按顺序首个命中即返回：无连接或空闲占比低于 50% 为 unhealthy；
空闲占比低于 80%、60 秒内出现过错误、峰值等待超过 100ms 为
degraded；其余为 healthy。
*/
package database
