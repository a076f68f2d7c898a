package batch

import (
	"fmt"

	"github.com/BaSui01/imageflow/types"
)

// Split 将一次逻辑请求切分为有序的子调用列表.
// 每个提示词产生 ceil(CountPerPrompt / maxImagesPerCall) 个子调用,
// 除最后一个外均请求 maxImagesPerCall 张, 最后一个请求余数, 绝不为零。
// Index 从 0 开始严格递增, 按提示词优先序分配
// (提示词 0 的全部子调用先于提示词 1)。
// 纯函数, 无 I/O 无副作用。
func Split(req *BatchRequest, maxImagesPerCall int) ([]*SubCall, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if maxImagesPerCall <= 0 {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("max images per call must be positive, got %d", maxImagesPerCall))
	}

	perPrompt := (req.CountPerPrompt + maxImagesPerCall - 1) / maxImagesPerCall
	subCalls := make([]*SubCall, 0, len(req.Prompts)*perPrompt)

	index := 0
	for _, prompt := range req.Prompts {
		remaining := req.CountPerPrompt
		for remaining > 0 {
			n := remaining
			if n > maxImagesPerCall {
				n = maxImagesPerCall
			}
			subCalls = append(subCalls, &SubCall{
				Index:           index,
				Kind:            req.Kind,
				Prompt:          prompt,
				Model:           req.Model,
				Size:            req.Size,
				Quality:         req.Quality,
				Style:           req.Style,
				ImagePath:       req.ImagePath,
				MaskPath:        req.MaskPath,
				ImagesRequested: n,
			})
			index++
			remaining -= n
		}
	}

	return subCalls, nil
}
