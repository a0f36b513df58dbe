package Explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/parix-analytics/parix-go/pipelines/AI"
	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

const narrativeSystemPrompt = `You are an experienced school intervention advisor. ` +
	`You receive one student's derived risk profile as JSON and write a short, ` +
	`practical intervention plan for their teacher. Ground every recommendation ` +
	`in the provided fields only: the persona, the risk level, the effort-outcome ` +
	`gap, the primary lever, and the key driver values (sleep hours, attendance ` +
	`percentage, weekly study hours). Do not invent data that is not in the ` +
	`payload. Keep the plan under 200 words, in plain prose.`

// NarrativeEngine turns a strict payload into a teacher-facing narrative via
// the configured LLM client. Calls are per-student and independent: a failure
// or timeout is surfaced as a NarrativeError for that student only and never
// touches derived data.
type NarrativeEngine struct {
	client     AI.LLMClient
	timeout    time.Duration
	maxRetries int
	logger     *utils.Logger
}

// NewNarrativeEngine creates a narrative engine over the given client.
// maxRetries counts retries after the first attempt; timeout bounds each
// attempt separately.
func NewNarrativeEngine(client AI.LLMClient, timeout time.Duration, maxRetries int) *NarrativeEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &NarrativeEngine{
		client:     client,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     utils.GetLogger(),
	}
}

// Generate produces a narrative for one student's payload
func (ne *NarrativeEngine) Generate(ctx context.Context, studentID string, payload *NarrativePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &models.NarrativeError{StudentID: studentID, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	request := AI.LLMRequest{
		SystemMsg: narrativeSystemPrompt,
		Messages: []AI.LLMMessage{
			{Role: "user", Content: string(body)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= ne.maxRetries; attempt++ {
		if attempt > 0 {
			ne.logger.Warn("Retrying narrative generation",
				utils.String("student_id", studentID),
				utils.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return "", &models.NarrativeError{StudentID: studentID, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, ne.timeout)
		response, err := ne.client.Complete(attemptCtx, request)
		cancel()
		if err != nil {
			lastErr = err
			// The parent context expiring ends the whole call, not just
			// this attempt.
			if ctx.Err() != nil {
				break
			}
			continue
		}

		text := strings.TrimSpace(response.Content)
		if text == "" {
			lastErr = fmt.Errorf("empty narrative response")
			continue
		}
		return text, nil
	}

	return "", &models.NarrativeError{StudentID: studentID, Err: lastErr}
}
