// Copyright 2026 ImageFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 ImageFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: WaitFor / WaitForChannel，支持超时轮询等待条件满足

# 子包

  - testutil/mocks: Mock 实现，包括 MockBackend（生成后端），
    支持脚本化逐次调用结果、延迟注入、阻塞与并发测量
*/
package testutil
