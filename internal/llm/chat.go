package llm

import (
	"context"
	"fmt"
	"strings"
)

const chatSystemPrompt = "You are an assistant answering questions about a recorded meeting. " +
	"Answer using only the transcript below. If the transcript does not contain the answer, say so plainly. " +
	"Bracketed placeholders mark audio that could not be transcribed; treat them as gaps, not content.\n\n" +
	"Transcript:\n"

// Chat answers questions grounded in a session transcript.
type Chat struct {
	client Client
}

func NewChat(client Client) *Chat {
	return &Chat{client: client}
}

func (c *Chat) Answer(ctx context.Context, transcript, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("chat: empty question")
	}
	if strings.TrimSpace(transcript) == "" {
		return "This session has no transcript yet.", nil
	}

	answer, err := c.client.Complete(ctx, []Message{
		{Role: "system", Content: chatSystemPrompt + transcript},
		{Role: "user", Content: question},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return answer, nil
}
