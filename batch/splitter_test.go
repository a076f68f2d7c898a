package batch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/types"
)

func validRequest() *batch.BatchRequest {
	return &batch.BatchRequest{
		Kind:           batch.KindGenerate,
		Prompts:        []string{"a red fox"},
		Size:           "1024x1024",
		CountPerPrompt: 1,
		MaxConcurrency: 3,
	}
}

func TestSplit_SinglePromptChunking(t *testing.T) {
	req := validRequest()
	req.CountPerPrompt = 10

	subCalls, err := batch.Split(req, 4)
	require.NoError(t, err)
	require.Len(t, subCalls, 3)

	assert.Equal(t, 4, subCalls[0].ImagesRequested)
	assert.Equal(t, 4, subCalls[1].ImagesRequested)
	assert.Equal(t, 2, subCalls[2].ImagesRequested)
	for i, sc := range subCalls {
		assert.Equal(t, i, sc.Index)
		assert.Equal(t, "a red fox", sc.Prompt)
	}
}

func TestSplit_ExactMultiple(t *testing.T) {
	req := validRequest()
	req.CountPerPrompt = 8

	subCalls, err := batch.Split(req, 4)
	require.NoError(t, err)
	require.Len(t, subCalls, 2)
	assert.Equal(t, 4, subCalls[0].ImagesRequested)
	assert.Equal(t, 4, subCalls[1].ImagesRequested)
}

func TestSplit_MultiPromptPromptMajorOrder(t *testing.T) {
	req := validRequest()
	req.Prompts = []string{"fox", "owl", "bear"}
	req.CountPerPrompt = 5

	subCalls, err := batch.Split(req, 4)
	require.NoError(t, err)
	require.Len(t, subCalls, 6)

	// 提示词 0 的全部子调用先于提示词 1
	wantPrompts := []string{"fox", "fox", "owl", "owl", "bear", "bear"}
	wantCounts := []int{4, 1, 4, 1, 4, 1}
	for i, sc := range subCalls {
		assert.Equal(t, i, sc.Index)
		assert.Equal(t, wantPrompts[i], sc.Prompt)
		assert.Equal(t, wantCounts[i], sc.ImagesRequested)
	}
}

func TestSplit_CapOne(t *testing.T) {
	req := validRequest()
	req.CountPerPrompt = 3

	subCalls, err := batch.Split(req, 1)
	require.NoError(t, err)
	require.Len(t, subCalls, 3)
	for _, sc := range subCalls {
		assert.Equal(t, 1, sc.ImagesRequested)
	}
}

func TestSplit_CarriesRequestFields(t *testing.T) {
	req := &batch.BatchRequest{
		Kind:           batch.KindEdit,
		Prompts:        []string{"add a hat"},
		Model:          "dall-e-2",
		Size:           "512x512",
		Quality:        "standard",
		Style:          "vivid",
		ImagePath:      "cat.png",
		MaskPath:       "mask.png",
		CountPerPrompt: 2,
		MaxConcurrency: 1,
	}

	subCalls, err := batch.Split(req, 4)
	require.NoError(t, err)
	require.Len(t, subCalls, 1)

	sc := subCalls[0]
	assert.Equal(t, batch.KindEdit, sc.Kind)
	assert.Equal(t, "dall-e-2", sc.Model)
	assert.Equal(t, "512x512", sc.Size)
	assert.Equal(t, "cat.png", sc.ImagePath)
	assert.Equal(t, "mask.png", sc.MaskPath)
	assert.Equal(t, 0, sc.RetryCount)
}

func TestSplit_InvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*batch.BatchRequest)
		cap    int
	}{
		{"empty prompts", func(r *batch.BatchRequest) { r.Prompts = nil }, 4},
		{"zero count", func(r *batch.BatchRequest) { r.CountPerPrompt = 0 }, 4},
		{"negative count", func(r *batch.BatchRequest) { r.CountPerPrompt = -2 }, 4},
		{"zero concurrency", func(r *batch.BatchRequest) { r.MaxConcurrency = 0 }, 4},
		{"negative retries", func(r *batch.BatchRequest) { r.MaxRetries = -1 }, 4},
		{"empty size", func(r *batch.BatchRequest) { r.Size = "" }, 4},
		{"variation without image", func(r *batch.BatchRequest) { r.Kind = batch.KindVariation }, 4},
		{"zero cap", func(r *batch.BatchRequest) {}, 0},
		{"negative cap", func(r *batch.BatchRequest) {}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			subCalls, err := batch.Split(req, tt.cap)
			require.Error(t, err)
			assert.Nil(t, subCalls)
			assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
		})
	}
}

// 切分的结构性质: 总张数守恒, 单调索引, 块大小受上限约束
func TestSplit_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numPrompts := rapid.IntRange(1, 6).Draw(t, "numPrompts")
		count := rapid.IntRange(1, 25).Draw(t, "count")
		chunk := rapid.IntRange(1, 8).Draw(t, "chunk")

		prompts := make([]string, numPrompts)
		for i := range prompts {
			prompts[i] = rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "prompt")
		}

		req := &batch.BatchRequest{
			Kind:           batch.KindGenerate,
			Prompts:        prompts,
			Size:           "1024x1024",
			CountPerPrompt: count,
			MaxConcurrency: 2,
		}

		subCalls, err := batch.Split(req, chunk)
		if err != nil {
			t.Fatalf("unexpected split error: %v", err)
		}

		total := 0
		for i, sc := range subCalls {
			if sc.Index != i {
				t.Fatalf("index %d at position %d", sc.Index, i)
			}
			if sc.ImagesRequested <= 0 || sc.ImagesRequested > chunk {
				t.Fatalf("chunk size %d violates cap %d", sc.ImagesRequested, chunk)
			}
			total += sc.ImagesRequested
		}
		if total != numPrompts*count {
			t.Fatalf("image count not conserved: got %d, want %d", total, numPrompts*count)
		}
	})
}
