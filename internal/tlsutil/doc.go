// Package tlsutil 提供集中式 TLS 配置，
// 为健康检查/指标 HTTP 服务端与 health 探测客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
