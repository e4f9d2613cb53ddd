// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的快速缓存层连接管理，支持连接池、
健康检查与按模式扫描删除。

# 概述

本包封装 go-redis 客户端，为分层缓存存储提供快速层（内存速度、
TTL 驱动）的统一读写接口。Manager 负责连接生命周期管理，包括
初始化、健康检查与优雅关闭。

# 核心类型

  - Manager：快速层管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/Exists/Expire/ScanPattern 等基础操作。
  - Config：连接配置，包含地址、密码、连接池大小、默认 TTL、
    操作超时与健康检查间隔。

# 降级语义

所有操作带 OpTimeout 上界：快速层不可达时调用方得到受限时间内
的错误而非无限阻塞，由上层（vision/cachestore）降级为"无缓存"。
提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
