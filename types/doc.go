// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ImageFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 batch、image、download
等上层模块提供统一的错误契约。生成后端产生的所有失败都会被归类为
一个 ErrorCode，调度器的重试决策完全基于该分类。

# 错误分类

  - RATE_LIMITED    — 后端限流；可重试，退避时间比默认更长
  - TRANSIENT       — 网络 / 连接 / 超时故障；可重试，标准退避
  - INVALID_REQUEST — 参数非法（尺寸、提示词等）；不可重试，立即上报
  - QUOTA_EXHAUSTED — 账户配额耗尽；不可重试（批次生命周期内重试无意义）
  - CANCELLED       — 批次被取消前未完成的子调用；合成错误，后端不会产生
  - UNKNOWN         — 未识别的后端错误；按可重试处理，受 MaxRetries 封顶

# 主要能力

  - 结构化错误：Error{Code, Message, HTTPStatus, Retryable, Provider, Cause}
  - 错误工具链：NewError / WithCause / WithHTTPStatus / IsRetryable / GetErrorCode
*/
package types
