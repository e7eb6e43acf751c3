// Package relay turns the daemon's line-delimited chat stream into the
// client-facing event stream.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/capitalize-ai/localchat/internal/llm"
	"github.com/capitalize-ai/localchat/internal/model"
)

const nanosPerSecond = 1e9

// Emitter writes one event downstream. A non-nil error stops the relay.
type Emitter func(event any) error

// Meta identifies the turn in the terminal summary.
type Meta struct {
	ConversationID *string
	Model          string
}

// Outcome describes how a relay ended.
type Outcome struct {
	FullContent string
	Metrics     model.Metrics
	Chunks      int
	// Completed is true only when the summary event was written.
	Completed bool
	Err       error
}

// Status is a short label for logs and metrics.
func (o *Outcome) Status() string {
	switch {
	case o.Completed:
		return "completed"
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

type streamLine struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done               bool    `json:"done"`
	EvalCount          float64 `json:"eval_count"`
	EvalDuration       float64 `json:"eval_duration"`
	PromptEvalDuration float64 `json:"prompt_eval_duration"`
	LoadDuration       float64 `json:"load_duration"`
}

// Run relays res.Body to emit until the stream ends, the context is
// cancelled, or emit fails. The body is closed on every path.
func Run(ctx context.Context, res *llm.ChatResult, meta Meta, emit Emitter) *Outcome {
	out := &Outcome{}

	if res == nil || !res.Success {
		msg := "chat failed"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		out.Err = model.UpstreamUnavailable(msg)
		_ = emit(&model.ErrorEvent{Success: false, Message: msg})
		return out
	}
	if res.Body == nil {
		msg := "no response body from model server"
		out.Err = model.UpstreamUnavailable(msg)
		_ = emit(&model.ErrorEvent{Success: false, Message: msg})
		return out
	}

	var once sync.Once
	release := func() { once.Do(func() { _ = res.Body.Close() }) }
	defer release()
	stop := context.AfterFunc(ctx, release)
	defer stop()

	var full strings.Builder
	reader := bufio.NewReader(res.Body)

	for {
		if err := ctx.Err(); err != nil {
			out.Err = err
			out.FullContent = full.String()
			return out
		}

		line, readErr := reader.ReadBytes('\n')

		if readErr != nil && !errors.Is(readErr, io.EOF) {
			out.FullContent = full.String()
			if err := ctx.Err(); err != nil {
				out.Err = err
				return out
			}
			msg := "stream error: " + readErr.Error()
			out.Err = &model.Error{Kind: model.KindTransportFault, Message: msg, Cause: readErr}
			_ = emit(&model.ErrorEvent{Success: false, Message: msg})
			return out
		}

		if event, ok := decodeLine(line); ok {
			full.WriteString(event.Chunk)
			if event.Metrics != nil {
				out.Metrics = *event.Metrics
			}
			if err := emit(event); err != nil {
				out.Err = err
				out.FullContent = full.String()
				return out
			}
			out.Chunks++
		}

		if readErr != nil {
			break
		}
	}

	out.FullContent = full.String()
	summary := &model.SummaryEvent{
		Success:        true,
		Done:           true,
		FullContent:    out.FullContent,
		Metrics:        out.Metrics,
		ConversationID: meta.ConversationID,
		Model:          meta.Model,
	}
	if err := emit(summary); err != nil {
		out.Err = err
		return out
	}
	out.Completed = true
	return out
}

// decodeLine parses one upstream line. Blank and malformed lines are reported
// as not ok and produce no event.
func decodeLine(line []byte) (*model.ChunkEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, false
	}

	var l streamLine
	if err := json.Unmarshal(line, &l); err != nil {
		return nil, false
	}

	event := &model.ChunkEvent{Success: true, Done: l.Done}
	if l.Message != nil {
		event.Chunk = l.Message.Content
	}
	if l.Done {
		if m := computeMetrics(&l); !m.Empty() {
			event.Metrics = m
		}
	}
	return event, true
}

func computeMetrics(l *streamLine) *model.Metrics {
	m := &model.Metrics{}
	if l.EvalCount > 0 && l.EvalDuration > 0 {
		m.TokensPerSecond = round2(l.EvalCount / (l.EvalDuration / nanosPerSecond))
	}
	if l.EvalDuration > 0 {
		m.GenerationTimeSec = round2(l.EvalDuration / nanosPerSecond)
	}
	if l.PromptEvalDuration > 0 {
		m.PromptProcessingTimeSec = round2(l.PromptEvalDuration / nanosPerSecond)
	}
	if l.LoadDuration > 0 {
		m.LoadTimeSec = round2(l.LoadDuration / nanosPerSecond)
	}
	return m
}

func round2(v float64) *float64 {
	r := math.RoundToEven(v*100) / 100
	return &r
}
