// Copyright (c) FrameSense Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FrameSense HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 FrameSense 所有 HTTP 端点的请求处理逻辑，
包括同步图像分析、WebSocket 流式分析、健康检查以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - AnalyzeHandler   — 图像分析处理器，POST /v1/analyze 同步响应，
    /v1/analyze/stream WebSocket 流式响应
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式）、ValidateContentType
  - 管线错误 → HTTP 状态码自动映射（访问拒绝、无可用模型等）
  - WebSocket 流式输出：阶段事件 + 最终结果
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
