// Package config 提供 ImageFlow 的配置管理功能。
//
// 包含配置加载与校验。支持从 YAML 文件和环境变量加载配置，
// 优先级为 默认值 → 文件 → 环境变量。
// 调度核心自身从不读取文件或环境变量，配置由调用方加载后注入。
package config
