package image

// 供应商定价表, 仅作为纯查表供 CostEstimate 使用,
// 核心调度算法不依赖这些数字。

// 生成定价: 尺寸 × 质量 → 单张美元价
var generationCosts = map[string]map[string]float64{
	"1024x1024": {"standard": 0.04, "hd": 0.08},
	"1024x1792": {"standard": 0.08, "hd": 0.12},
	"1792x1024": {"standard": 0.08, "hd": 0.12},
}

// 变体 / 编辑定价: 尺寸 → 单张美元价
var variationCosts = map[string]float64{
	"1024x1024": 0.02,
	"512x512":   0.018,
	"256x256":   0.016,
}

// GenerationCost 估算一次生成调用的成本.
// 未知尺寸或质量回退到 1024x1024 standard 的价格。
func GenerationCost(size, quality string, n int) float64 {
	perImage := 0.04
	if byQuality, ok := generationCosts[size]; ok {
		if c, ok := byQuality[quality]; ok {
			perImage = c
		}
	}
	return perImage * float64(n)
}

// VariationCost 估算一次变体或编辑调用的成本.
func VariationCost(size string, n int) float64 {
	perImage := 0.02
	if c, ok := variationCosts[size]; ok {
		perImage = c
	}
	return perImage * float64(n)
}
