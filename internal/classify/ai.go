package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/pkg/anthropic"
)

const aiSystemPrompt = `You classify theme park attractions by importance for downtime reporting.
Tier 1 = flagship attraction (headline coaster, major dark ride, the ride people visit the park for).
Tier 2 = moderate attraction (solid mid-tier ride or show).
Tier 3 = minor attraction (children's ride, small flat ride, walkthrough).
Respond with a valid JSON object: {"tier": <1|2|3>, "confidence": <0.0-1.0>, "rationale": "<one sentence>"}`

const aiUserPrompt = `Park: %s
Attraction: %s`

// aiResolver calls the external classification service. It is the last tier
// and the only one with a cost, so calls are rate limited client-side.
type aiResolver struct {
	client  anthropic.Client
	cfg     config.AnthropicConfig
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewAIResolver creates the AI fallback resolver.
func NewAIResolver(client anthropic.Client, cfg config.AnthropicConfig) Resolver {
	perSec := cfg.RatePerSecond
	if perSec <= 0 {
		perSec = 1
	}
	return &aiResolver{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		log:     zap.L().With(zap.String("component", "classify.ai")),
	}
}

func (r *aiResolver) Name() string { return "ai" }

func (r *aiResolver) Resolve(ctx context.Context, key Key, attraction model.Attraction, parkName string) (*model.ClassificationRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "classify: ai rate limit wait")
	}

	maxTokens := int64(r.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 256
	}

	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.cfg.Model,
		MaxTokens: maxTokens,
		System:    aiSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(aiUserPrompt, parkName, attraction.Name)},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "classify: ai call for %s", key)
	}
	resp.Usage.LogCost(r.cfg.Model, "classify")

	tier, confidence, rationale, err := parseAIResult(resp.Text())
	if err != nil {
		r.log.Warn("unparseable ai classification",
			zap.String("attraction", attraction.Name),
			zap.Error(err),
		)
		return nil, err
	}

	return &model.ClassificationRecord{
		ParkID:       key.ParkID,
		AttractionID: key.AttractionID,
		Tier:         tier,
		Confidence:   confidence,
		Source:       model.SourceAI,
		Rationale:    rationale,
	}, nil
}

// parseAIResult decodes the model's JSON reply, tolerating code fences.
func parseAIResult(text string) (model.Tier, float64, string, error) {
	text = cleanJSON(text)

	var result struct {
		Tier       int     `json:"tier"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return 0, 0, "", eris.Wrap(err, "classify: decode ai response")
	}

	tier := model.Tier(result.Tier)
	if !tier.Valid() {
		return 0, 0, "", eris.Errorf("classify: ai returned invalid tier %d", result.Tier)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return 0, 0, "", eris.Errorf("classify: ai returned invalid confidence %f", result.Confidence)
	}
	return tier, result.Confidence, result.Rationale, nil
}

// cleanJSON strips markdown code fences around a JSON payload.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
