// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供健康检查与指标 HTTP 服务器的生命周期管理，支持
非阻塞启动、可选 TLS 与优雅关闭。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。dbpool 进程同时运行两个 Manager：一个承载
/health、/ready、/stats，另一个承载 /metrics。信号监听由 cmd
统一处理，以便按 HTTP 服务 → 巡检 → 连接池 的顺序关闭。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown/Errors 等生命周期方法。
  - Config：服务器配置，包含名称、监听地址、读写超时、空闲超时、
    最大请求头大小、优雅关闭超时与 TLS 证书路径。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - TLS：配置证书后以 tlsutil 的加固配置提供 HTTPS。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放，重复调用无副作用。
  - 错误传播：Errors() 返回异步错误通道，供调用方监控服务异常。
*/
package server
