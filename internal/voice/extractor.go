package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kantinyonetim/canteen-service/internal/order"
)

const extractionPrompt = `Sen bir kantin sipariş asistanısın. Aşağıdaki konuşma metninden sipariş edilen ürünleri ve adetlerini çıkar.

Menüdeki ürünler:
%s

Kurallar:
- Yalnızca menüdeki ürün adlarını menüde yazıldığı şekilde kullan.
- Adet belirtilmemişse 1 kabul et.
- Yalnızca JSON döndür, başka açıklama ekleme.

Beklenen biçim:
{"orders": [{"item": "ürün adı", "quantity": 1}]}

Konuşma metni:
%q`

// Extractor asks a language model to turn a transcript into order lines.
type Extractor struct {
	model llms.Model
}

func NewExtractor(model llms.Model) *Extractor {
	return &Extractor{model: model}
}

type LLMConfig struct {
	BaseURL string
	Model   string
	Token   string
}

// NewOpenAIExtractor connects to an OpenAI compatible completion endpoint.
func NewOpenAIExtractor(cfg LLMConfig) (*Extractor, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.Token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewExtractor(model), nil
}

type extraction struct {
	Orders []struct {
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	} `json:"orders"`
}

func (e *Extractor) Extract(ctx context.Context, transcript string, menu []string) ([]order.NamedLine, error) {
	prompt := fmt.Sprintf(extractionPrompt, "- "+strings.Join(menu, "\n- "), transcript)

	reply, err := llms.GenerateFromSinglePrompt(ctx, e.model, prompt, llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	return parseExtraction(reply)
}

func parseExtraction(reply string) ([]order.NamedLine, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, errors.New("model reply contains no JSON object")
	}
	var parsed extraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("model reply is not valid JSON: %w", err)
	}

	lines := make([]order.NamedLine, 0, len(parsed.Orders))
	for _, o := range parsed.Orders {
		name := strings.TrimSpace(o.Item)
		if name == "" {
			continue
		}
		if o.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for %q", o.Quantity, name)
		}
		lines = append(lines, order.NamedLine{Name: name, Quantity: o.Quantity})
	}
	if len(lines) == 0 {
		return nil, errors.New("no order lines recognised")
	}
	return lines, nil
}
