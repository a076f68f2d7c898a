package image

import "time"

// OpenAIConfig 是 OpenAI 图像后端的配置.
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // dall-e-2, dall-e-3
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// 客户端侧限流: 每分钟请求数上限, 0 表示不限
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	// 限流突发额度, 0 时取 1
	RateBurst int `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`
}

// DefaultOpenAIConfig 返回默认的 OpenAI 图像配置.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
	}
}
