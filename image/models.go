package image

// 各模型单次调用允许请求的最大图像数, 由供应商限制.
// dall-e-2 支持单次最多 4 张, dall-e-3 每次只能生成 1 张。
var modelImageCaps = map[string]int{
	"dall-e-2": 4,
	"dall-e-3": 1,
}

// MaxImagesPerCall 返回模型的单次调用图像数上限.
// 未知模型保守地返回 1。
func MaxImagesPerCall(model string) int {
	if n, ok := modelImageCaps[model]; ok {
		return n
	}
	return 1
}

// SupportedSizes 返回模型支持的图像尺寸.
func SupportedSizes(model string) []string {
	switch model {
	case "dall-e-2":
		return []string{"256x256", "512x512", "1024x1024"}
	default:
		return []string{"1024x1024", "1792x1024", "1024x1792"}
	}
}
