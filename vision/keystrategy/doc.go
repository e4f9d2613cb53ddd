// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 keystrategy 将 (serviceType, image, params) 变为确定性的缓存键
与对应的存储策略，是缓存层的键生成入口。

# 概述

每个服务类型注册一个 ServiceStrategy：键模板、TTL、压缩开关、
存储层级与成本等级。Builder.BuildKey 先查表取策略，再逐个计算
模板中出现的占位符并做字面替换：

  - {imageHash}：图像感知哈希（64 位 pHash，16 位十六进制），
    以原始字节 SHA-256 前缀做进程内记忆化；解码/哈希失败时直接
    降级为 SHA-256 前缀，这是刻意的降级模式而非硬失败。
  - {questionHash}：问题文本规范化（大小写折叠、去标点、空白
    归一）后的 SHA-256 前 12 位十六进制。
  - {faceHash}：提供边界框时对裁剪子图计算，否则等于 imageHash。
  - {lang}/{model}/{method}/{provider}：参数透传，带文档化默认值。

# 记忆化

图像哈希与问题哈希各有一张并发安全的记忆化表，容量有上界，
并通过 ClearCaches 显式清空，避免进程生命周期内无界增长。
*/
package keystrategy
