// Copyright (c) FrameSense Authors.
// Licensed under the MIT License.

/*
Package main 提供 FrameSense 服务端程序入口。

# 概述

cmd/framesense 是 FrameSense 视觉分析核心的可执行入口，提供 HTTP API
服务、数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件
加载、结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，组装分析管线并管理 HTTP、Metrics 双端口
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、BodyLimit、
    RequestLogger、CORS、RateLimiter（基于 IP）、MetricsMiddleware、
    OTelTracing、JWTAuth（Bearer，匿名请求按免费层处理）
  - 分析管线：分类 → 访问控制 → 模型选择 → 成本优化 → 降级链 → 两级缓存
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止后台任务 → 关闭 HTTP → 关闭 Metrics → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
