// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ImageFlow 命令行程序入口。

# 概述

cmd/imageflow 是批量图像生成的可执行入口，把一次逻辑请求切分为
受模型单次上限约束的子调用，以有界并发调度执行，实时显示进度，
最终下载成功结果并输出逐条失败明细。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 主要能力

  - 子命令：generate（文本生成）、variation（图像变体）、edit（图像编辑）、version
  - 重复 --prompt 参数支持多提示词批次，--count 控制每提示词张数
  - 进度行实时重绘：已完成 / 在途 / 待执行 / 失败 / 累计成本
  - Ctrl-C 协作式取消：排空未开始的子调用，已在途的照常收尾
  - 部分失败聚合：批次跑到所有子调用终态，退出码反映是否有失败
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
