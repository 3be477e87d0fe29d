package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/xuxing3/JiZhang/internal/extract"
)

const (
	dashscopeTextURL   = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	dashscopeVisionURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation"

	dashscopeTextModel   = "qwen-turbo"
	dashscopeVisionModel = "qwen-vl-plus"
)

const dashscopeTextPrompt = "从用户的记账文本中抽取字段，只返回 JSON（不要加入任何解释或 Markdown）：" +
	`{ "amount": 数字, "category": "字符串", "payee": "字符串", "time": "字符串或空", "note": "原文或摘要" }。` +
	"如果只有时间（如 19:17）仅返回 HH:MM；若无时间则返回空字符串。文本："

const dashscopeVisionPrompt = "请从这张付款截图中提取如下字段，直接返回 JSON（不要加解释、不要加 Markdown）：" +
	`{ "amount": "支付金额(数字或字符串)", "payee": "商家名称", "category": "消费类型(如:餐饮/购物/出行/转账等)", ` +
	`"time": "交易时间(如: 19:17；若包含日期请忽略日期，仅返回时间)" }`

// DashScope calls Alibaba's DashScope (Qwen) generation endpoints.
type DashScope struct {
	apiKey string
	client *http.Client
	log    zerolog.Logger
}

// NewDashScope builds a DashScope provider. A single attempt is made per
// request; the 60s timeout bounds the user-facing latency.
func NewDashScope(apiKey string, log zerolog.Logger) *DashScope {
	return &DashScope{
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

// Name implements Provider.
func (p *DashScope) Name() string { return "dashscope" }

// ExtractText implements Provider.
func (p *DashScope) ExtractText(ctx context.Context, text string) (*extract.Draft, error) {
	payload := map[string]any{
		"model":      dashscopeTextModel,
		"input":      map[string]any{"prompt": dashscopeTextPrompt + text},
		"parameters": map[string]any{"use_raw_prompt": true},
	}
	content, err := p.generate(ctx, dashscopeTextURL, payload)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	return draftFromObject(obj), nil
}

// ExtractImage implements Provider. The image travels inline as a data URL.
func (p *DashScope) ExtractImage(ctx context.Context, mimeType string, data []byte) (*extract.Draft, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	payload := map[string]any{
		"model": dashscopeVisionModel,
		"input": map[string]any{
			"messages": []map[string]any{{
				"role": "user",
				"content": []map[string]any{
					{"image": dataURL},
					{"text": dashscopeVisionPrompt},
				},
			}},
		},
		"parameters": map[string]any{"use_raw_prompt": true},
	}
	content, err := p.generate(ctx, dashscopeVisionURL, payload)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	return draftFromObject(obj), nil
}

// generate posts one request and digs the text content out of whichever
// of DashScope's response shapes came back.
func (p *DashScope) generate(ctx context.Context, url string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dashscope: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	p.log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("DashScope response")

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed struct {
		Output struct {
			Text    string `json:"text"`
			Choices []struct {
				Message struct {
					Content json.RawMessage `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"output"`
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("dashscope: decode response: %w", err)
	}

	if parsed.Output.Text != "" {
		return parsed.Output.Text, nil
	}
	if len(parsed.Output.Choices) > 0 {
		return contentText(parsed.Output.Choices[0].Message.Content), nil
	}
	if parsed.OutputText != "" {
		return parsed.OutputText, nil
	}
	return "", fmt.Errorf("dashscope: response has no text content")
}

// contentText handles both content shapes: a plain string for text
// models, and a list of {"text": ...} parts for the vision model.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		for _, part := range parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
