// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cachestore 实现两级缓存存储：Redis 快速层 + GORM 持久层。

# 条目状态机

	absent → fast-tier-hit | durable-tier-hit → (提升到快速层)
	       → expired/evicted → absent

Get 先查快速层；未命中且策略允许时查持久层；持久层命中后解压
（若有压缩标记）并以 min(TTL, 1h) 提升进快速层。每次查询按来源
（fast/durable/miss/error）计数。

Set 序列化后按策略决定压缩（超过 1024 字节阈值才压缩，gzip 包装为
{compressed, algorithm, data}）；持久层写入同时以受限 TTL 镜像进
快速层。压缩失败降级为明文存储，解压失败按未命中处理——两者都
不会把错误抛给调用方。

# 后台任务

  - 预热：定期按访问计数扫描"已过期但历史热门"的持久层行，
    生成预热候选列表；真正的重新填充需要回调上游服务，不属于
    本组件职责。
  - 清理：定期删除过期持久层行；另一个定时任务清空内存中的
    热门查询追踪表以约束内存。

后台任务基于快照/分批操作，不在全表扫描期间持锁。

# 降级语义

快速层不可达时 Get/Set 在受限时间内降级为 miss/false，从不向
调用方传播连接错误。
*/
package cachestore
