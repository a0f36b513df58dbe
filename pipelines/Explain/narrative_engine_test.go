package Explain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parix-analytics/parix-go/pipelines/AI"
	"github.com/parix-analytics/parix-go/pkg/models"
)

func newMockEngine(maxRetries int) (*NarrativeEngine, *AI.MockClient) {
	client := AI.NewMockClient(AI.LLMClientConfig{})
	return NewNarrativeEngine(client, 5*time.Second, maxRetries), client
}

func samplePayload() *NarrativePayload {
	builder := NewPayloadBuilder(-1.0, -0.5)
	return builder.Build(sampleRow())
}

func TestGenerateNarrative(t *testing.T) {
	engine, client := newMockEngine(0)
	client.SetResponses("Focus on earlier bedtimes this term.")

	narrative, err := engine.Generate(context.Background(), "STUD0001", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "Focus on earlier bedtimes this term.", narrative)

	// The payload travels as the JSON user message under the fixed system
	// prompt.
	requests := client.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, narrativeSystemPrompt, requests[0].SystemMsg)
	require.Len(t, requests[0].Messages, 1)

	var sent NarrativePayload
	require.NoError(t, json.Unmarshal([]byte(requests[0].Messages[0].Content), &sent))
	assert.Equal(t, *samplePayload(), sent)
}

func TestGenerateNarrativeFailure(t *testing.T) {
	engine, client := newMockEngine(0)
	client.SetError(errors.New("upstream unavailable"))

	_, err := engine.Generate(context.Background(), "STUD0001", samplePayload())
	require.Error(t, err)

	var narrativeErr *models.NarrativeError
	require.ErrorAs(t, err, &narrativeErr)
	assert.Equal(t, "STUD0001", narrativeErr.StudentID)
}

func TestGenerateNarrativeRetriesThenSucceeds(t *testing.T) {
	engine, client := newMockEngine(2)
	// First attempt comes back blank and is retried.
	client.SetResponses("", "Pair the student with a study group.")

	narrative, err := engine.Generate(context.Background(), "STUD0001", samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "Pair the student with a study group.", narrative)
	assert.Len(t, client.Requests(), 2)
}

func TestGenerateNarrativeExhaustsRetries(t *testing.T) {
	engine, client := newMockEngine(1)
	client.SetError(errors.New("upstream unavailable"))

	_, err := engine.Generate(context.Background(), "STUD0001", samplePayload())
	require.Error(t, err)
	assert.Len(t, client.Requests(), 2)
}

func TestGenerateNarrativeCancelledContext(t *testing.T) {
	engine, _ := newMockEngine(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Generate(ctx, "STUD0001", samplePayload())
	require.Error(t, err)

	var narrativeErr *models.NarrativeError
	require.ErrorAs(t, err, &narrativeErr)
	assert.ErrorIs(t, narrativeErr.Err, context.Canceled)
}
