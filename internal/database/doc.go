// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供持久层（GORM）连接池管理。
本包为 internal 包，不应被外部项目导入。

# 概述

持久层承载分层缓存的 durable tier（cache_entries 表）与用户
用量表。Open 按配置选择方言（postgres/mysql/sqlite，其中 sqlite
使用纯 Go 的 glebarez 驱动，便于无 CGO 部署与测试），PoolManager
负责连接池参数、健康检查与优雅关闭。
*/
package database
