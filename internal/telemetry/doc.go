// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 dbpool 提供集中式的 TracerProvider 和 MeterProvider，
// 供连接池的 span 与借出耗时直方图使用。
// 当遥测功能禁用时，退回全局 noop 实现，不连接任何外部服务。
package telemetry
