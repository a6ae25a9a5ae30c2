// Package openai implements models.Triager on top of an OpenAI-compatible
// chat completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/healthreport/internal/config"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const maxTokens = 1024

var ErrEmptyCompletion = errors.New("openai returned no choices")

// chatClient is the part of *goopenai.Client the triager uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Triager asks a chat model for a specialty recommendation.
type Triager struct {
	client  chatClient
	model   string
	timeout time.Duration
}

func NewTriager(cfg config.OpenAIConfig, timeout time.Duration) *Triager {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Triager{
		client:  goopenai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// newTriagerWithClient is used by tests to inject a fake chat client.
func newTriagerWithClient(c chatClient, model string) *Triager {
	return &Triager{client: c, model: model}
}

func (t *Triager) Name() string { return "openai" }

func (t *Triager) Triage(ctx context.Context, req models.TriageRequest) (models.TriageResult, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model: t.model,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	}
	// Reasoning models reject MaxTokens.
	if strings.HasPrefix(t.model, "o1") || strings.HasPrefix(t.model, "o3") ||
		strings.HasPrefix(t.model, "o4") || strings.HasPrefix(t.model, "gpt-5") {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}

	resp, err := t.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.TriageResult{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.TriageResult{}, ErrEmptyCompletion
	}

	var out completion
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return models.TriageResult{}, fmt.Errorf("decode completion: %w", err)
	}
	return out.toResult(), nil
}

const systemPrompt = `You are a medical triage assistant. Given a patient's prior assessments
and current concern, recommend the single most appropriate medical specialty for a
focused report. Respond with a JSON object only, with keys:
primary_specialty (one of cardiology, neurology, psychiatry, gastroenterology,
endocrinology, pulmonology, dermatology, rheumatology, orthopedics, nephrology,
urology, gynecology, oncology, infectious-disease, primary-care),
confidence (0..1), reasoning, urgency (routine|urgent|emergent), red_flags (array),
secondary_specialties (array of {specialty, confidence, reason}), recommended_timing.`

func userPrompt(req models.TriageRequest) string {
	var b strings.Builder
	keys := make([]string, 0, len(req.IDs))
	byKey := make(map[string][]string, len(req.IDs))
	for v, ids := range req.IDs {
		if len(ids) == 0 {
			continue
		}
		keys = append(keys, v.WireKey())
		byKey[v.WireKey()] = ids
	}
	sort.Strings(keys)

	if len(keys) > 0 {
		b.WriteString("Assessments considered:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(byKey[k], ", "))
		}
	}
	if req.PrimaryConcern != "" {
		fmt.Fprintf(&b, "Primary concern: %s\n", req.PrimaryConcern)
	}
	if len(req.Symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(req.Symptoms, "; "))
	}
	return b.String()
}

type completion struct {
	PrimarySpecialty     string   `json:"primary_specialty"`
	Confidence           float64  `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	Urgency              string   `json:"urgency"`
	RedFlags             []string `json:"red_flags"`
	SecondarySpecialties []struct {
		Specialty  string  `json:"specialty"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	} `json:"secondary_specialties"`
	RecommendedTiming string `json:"recommended_timing"`
}

func (c completion) toResult() models.TriageResult {
	out := models.TriageResult{
		PrimarySpecialty:  models.Specialty(c.PrimarySpecialty),
		Confidence:        c.Confidence,
		Reasoning:         c.Reasoning,
		Urgency:           models.TriageUrgency(c.Urgency),
		RedFlags:          c.RedFlags,
		RecommendedTiming: c.RecommendedTiming,
	}
	for _, s := range c.SecondarySpecialties {
		out.SecondarySpecialties = append(out.SecondarySpecialties, models.SpecialtyRecommendation{
			Specialty:  models.Specialty(s.Specialty),
			Confidence: s.Confidence,
			Reason:     s.Reason,
		})
	}
	return out
}

var _ models.Triager = (*Triager)(nil)
