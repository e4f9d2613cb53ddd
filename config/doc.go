// Package config 提供 FrameSense 的配置管理功能。
//
// 包含服务器、两级缓存、路由、鉴权、日志与遥测的配置结构。
// 支持从 YAML 文件和环境变量加载配置，
// 优先级为 默认值 → 文件 → 环境变量。
package config
