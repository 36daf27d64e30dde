package chatclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
	"github.com/gonkalabs/feedbackbot-go/internal/sse"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
	ModelID string `json:"modelId,omitempty"` // assistant replies only
}

// SendOptions describes one chat request.
type SendOptions struct {
	Messages []Message
	Model    string // optional override
	Subject  string // optional, selects the subject prompt

	// OnChunk receives every non-empty content fragment in order.
	OnChunk func(text string)
	// OnRetry is called before each wait between attempts.
	OnRetry func(st retry.State)
	// OnUsage is called once after a successful stream that reported usage.
	OnUsage func(u sse.Usage)
}

// Result is a completed reply.
type Result struct {
	Content  string
	Usage    *sse.Usage
	Attempts int
}

type chatRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
	Subject  string    `json:"subject,omitempty"`
}

// errStreamCut marks a stream that failed after content was delivered.
var errStreamCut = errors.New("stream interrupted")

// Send posts the conversation to /api/chat and streams the reply.
//
// Retryable failures are retried following the client's policy. A terminal
// failure is returned at once. When every attempt failed the last error is
// returned with Exhausted set and Retryable cleared. A stream that breaks
// after the first chunk is not retried, since the chunks were already handed
// to OnChunk.
func (c *Client) Send(ctx context.Context, opts SendOptions) (*Result, error) {
	body := chatRequest{Messages: opts.Messages, Model: opts.Model, Subject: opts.Subject}

	var last *apierr.Error
	for attempt := 0; ; attempt++ {
		res, err := c.attempt(ctx, body, opts)
		if err == nil {
			res.Attempts = attempt + 1
			if res.Usage != nil && opts.OnUsage != nil {
				opts.OnUsage(*res.Usage)
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chat: %w", ctx.Err())
		}

		e, ok := apierr.As(err)
		if !ok {
			e = apierr.New(0, "Network error: "+err.Error(), true, nil)
		}
		slog.Warn("chatclient: attempt failed",
			"attempt", attempt+1,
			"max", c.policy.MaxAttempts,
			"status", e.Status,
			"category", e.Category,
			"retryable", e.Retryable,
		)
		if !e.Retryable {
			return nil, e
		}
		last = e
		if !c.policy.CanRetry(attempt) {
			break
		}

		st := c.policy.Next(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(st)
		}
		if err := c.sleep(ctx, st.Delay); err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
	}
	return nil, last.Exhaust()
}

func (c *Client) attempt(ctx context.Context, body chatRequest, opts SendOptions) (*Result, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	res, err := readStream(resp.Body, opts.OnChunk)
	if errors.Is(err, errStreamCut) {
		return nil, apierr.New(0, err.Error(), false, nil)
	}
	return res, err
}

// readStream consumes an event stream until [DONE] or EOF. Lines are
// reassembled across reads; undecodable frames are skipped.
func readStream(r io.Reader, onChunk func(string)) (*Result, error) {
	br := bufio.NewReader(r)
	var (
		content strings.Builder
		res     Result
	)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			kind, chunk := sse.ParseLine(strings.TrimSuffix(line, "\n"))
			switch kind {
			case sse.KindDone:
				res.Content = content.String()
				return &res, nil
			case sse.KindMalformed:
				slog.Debug("chatclient: skipping malformed frame", "len", len(line))
			case sse.KindChunk:
				if s := chunk.Content(); s != "" {
					content.WriteString(s)
					if onChunk != nil {
						onChunk(s)
					}
				}
				if chunk.Usage != nil {
					res.Usage = chunk.Usage
				}
			}
		}
		if err == io.EOF {
			res.Content = content.String()
			return &res, nil
		}
		if err != nil {
			if content.Len() > 0 {
				return nil, fmt.Errorf("%w: %v", errStreamCut, err)
			}
			return nil, err
		}
	}
}
