// Package config 提供 dbpool 服务的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量默认前缀为
// DBPOOL。database.pool 段是原始键值对，可通过 DBPOOL_DATABASE_POOL_<KEY>
// 逐项覆盖，最终交给 database.ParsePoolConfig 解析为不可变的连接池配置。
package config
