// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 vision 定义图像分析核心的领域类型与协作者接口，是整个路由/缓存
管线共享的基础包。

# 概述

FrameSense 将用户的自然语言问题与截图路由到能够回答它的最便宜的
AI 分析服务（OCR、云端视觉 API、多模态大模型），并通过内容寻址的
两级缓存避免重复计算。本包不包含任何业务逻辑，只承载：

  - 请求/结果类型：AnalyzeRequest、AnalysisResult、Params。
  - 订阅层级：Tier（free < pro < premium < enterprise）及层级比较。
  - 用户画像：UserTierProfile，由外部账单系统拥有，核心只读。
  - 问题类型：QuestionType，静态注册表条目，支持运行时扩展。
  - 路由候选：RouteCandidate 及其评分，按请求生成、从不持久化。
  - 协作者接口：Service（上游分析服务）与 UserStore（用户/账单）。
  - 错误分类：整个管线共享的哨兵错误与结构化错误类型。

# 错误语义

组件内部失败（哈希、压缩、缓存连接、用量追踪）就地降级，请求以
缩减的功能继续执行；只有 ErrNoEligibleModel 与 AccessDenied 会在
产生任何上游成本之前作为结构化拒绝提前返回。
*/
package vision
