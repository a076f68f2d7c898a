package config

import "time"

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Backend:   DefaultBackendConfig(),
		Dispatch:  DefaultDispatchConfig(),
		Download:  DefaultDownloadConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultBackendConfig 返回默认后端配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
	}
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxConcurrency: 3,
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// DefaultDownloadConfig 返回默认下载配置
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		Dir:         "generated_images",
		Parallelism: 4,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "imageflow",
		SampleRate:   1.0,
	}
}
