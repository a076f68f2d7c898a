// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
包 image 提供 batch.Backend 的供应商适配层与相关查表.

# 概述

调度核心只依赖 batch.Backend 抽象, 本包负责把 OpenAI 图像端点
(/v1/images/generations、/v1/images/edits、/v1/images/variations)
适配到该抽象, 并把 HTTP 失败归入统一错误分类供重试决策使用。

# 主要能力

  - OpenAIBackend：JSON 生成请求、multipart 编辑/变体请求、Bearer 认证。
  - 错误分类：429 → RATE_LIMITED / QUOTA_EXHAUSTED, 4xx → INVALID_REQUEST,
    5xx 与传输失败 → TRANSIENT。
  - 客户端侧限流：x/time/rate, 按每分钟请求数自我约束。
  - 模型查表：MaxImagesPerCall（dall-e-2 为 4, dall-e-3 为 1）、SupportedSizes。
  - 定价查表：GenerationCost / VariationCost, 仅供 CostEstimate 使用。
*/
package image
