// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的内部指标收集。
本包为 internal 包，不应被外部项目导入。

# 概述

Collector 注册并记录分析核心关心的全部指标：HTTP 请求、分层缓存
命中/未命中（按来源 fast/durable/miss/error）、压缩节省字节数、
降级链调用与成功率、缓存命中节省的费用总额。

除 Prometheus 计数器外，Collector 同步维护一组原子镜像计数，
通过 Snapshot 以只读结构体导出，供健康检查与统计接口使用，
无需抓取 /metrics 文本。

所有记录方法对 nil 接收者安全：未注入 Collector 的组件可以
直接调用而不做判空。
*/
package metrics
