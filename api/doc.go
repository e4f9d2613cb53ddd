// Copyright (c) FrameSense Authors.
// Licensed under the MIT License.

/*
Package api 定义 FrameSense HTTP API 的请求与响应数据结构。

# 概述

api 包包含 /v1/analyze 同步分析与 /v1/analyze/stream 流式分析
端点的 DTO 定义，以及图像载荷的 base64 解码辅助函数。
所有结构均可直接 JSON 序列化，字段命名与线上契约保持一致。

# 核心类型

  - AnalyzeRequest  — 分析请求：问题文本 + base64 图像 + 可选参数
  - AnalyzeParams   — 键生成与调度参数（语言、模型、方法、提供方）
  - AnalyzeResponse — 分析响应：文本、置信度、来源、成本与降级信息
  - StreamEvent     — WebSocket 流式事件（阶段 + 载荷）

# 主要能力

  - DecodeImage 支持裸 base64 与 data: URI 两种图像编码形式
  - AnalyzeRequest.ToVision / ResponseFromResult 在线上契约与
    内部类型之间转换
*/
package api
