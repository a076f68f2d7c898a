// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
包 batch 提供面向限流生成 API 的有界并发调度能力: 将一次逻辑请求
切分为受单次调用图像数上限约束的子调用, 由固定规模的 worker 池执行,
处理重试、部分失败聚合与实时进度。

# 概述

图像生成 API 通常 (a) 限流、(b) 限制单次调用的图像数、(c) 间歇性失败。
朴素的逐条调用要么浪费吞吐, 要么在失败时丢弃已成功的结果。
本包把这类批量协调收敛为一个调度器抽象: 切分、派发、分类、重试、聚合。

# 核心组件

  - Split：纯函数切分器, 按提示词优先序产生带稳定 Index 的子调用。
  - Dispatcher：有界 worker 池, FIFO 队列, 指数退避重试回插队尾,
    协作式取消, 每次状态转换发布 BatchSnapshot。
  - aggregator：线程安全簿记, 终态唯一性约束, 按 Index 排序的最终结果。
  - RetryPolicy / ShouldRetry：重试决策是 (错误分类, 已用次数, 预算)
    的纯函数, 可脱离真实后端独立测试。

# 主要能力

  - 并发上限：在途子调用数绝不超过 MaxConcurrency。
  - 部分失败：单个子调用失败不中止批次, 成功与失败并列上报。
  - 退避重试：限流错误使用更长基数, ±25% 抖动, 退避期间队列不被阻塞。
  - 取消排空：Cancel 后未决子调用以 CANCELLED 终结, 每个 Index 都有交代。

# 使用方式

	req := &batch.BatchRequest{
	    Kind: batch.KindGenerate,
	    Prompts: []string{"a cat"},
	    Size: "1024x1024",
	    CountPerPrompt: 10,
	    MaxConcurrency: 3,
	    MaxRetries: 3,
	}
	outcome, err := batch.Run(ctx, req, backend, 4, logger, func(s batch.BatchSnapshot) {
	    // 渲染进度条
	})
*/
package batch
