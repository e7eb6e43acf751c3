package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/localchat/internal/llm"
	"github.com/capitalize-ai/localchat/internal/model"
)

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type recorder struct {
	events []any
}

func (r *recorder) emit(event any) error {
	r.events = append(r.events, event)
	return nil
}

// lines renders recorded events the way they go over the wire.
func (r *recorder) lines(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		out = append(out, string(data))
	}
	return out
}

func streamResult(body io.ReadCloser) *llm.ChatResult {
	return &llm.ChatResult{Success: true, Stream: true, Body: body}
}

func conversationID(s string) *string { return &s }

func TestRunRelaysChunksInOrder(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		`{"message":{"content":"Hel"},"done":false}` + "\n" +
			`{"message":{"content":"lo"},"done":false}` + "\n" +
			`{"message":{"content":"!"},"done":true,"eval_count":50,"eval_duration":2000000000,"prompt_eval_duration":123456789,"load_duration":250000000}` + "\n",
	)}
	rec := &recorder{}

	out := Run(context.Background(), streamResult(body), Meta{ConversationID: conversationID("c1"), Model: "llama3"}, rec.emit)

	require.True(t, out.Completed)
	assert.NoError(t, out.Err)
	assert.Equal(t, 3, out.Chunks)
	assert.Equal(t, "Hello!", out.FullContent)
	assert.Equal(t, 1, body.closed)

	lines := rec.lines(t)
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"success":true,"chunk":"Hel","done":false}`, lines[0])
	assert.JSONEq(t, `{"success":true,"chunk":"lo","done":false}`, lines[1])
	assert.JSONEq(t, `{"success":true,"chunk":"!","done":true,"metrics":{"tokens_per_second":25,"generation_time_sec":2,"prompt_processing_time_sec":0.12,"load_time_sec":0.25}}`, lines[2])
	assert.JSONEq(t, `{"success":true,"done":true,"full_content":"Hello!","metrics":{"tokens_per_second":25,"generation_time_sec":2,"prompt_processing_time_sec":0.12,"load_time_sec":0.25},"conversation_id":"c1","model":"llama3"}`, lines[3])
}

func TestRunSkipsBlankAndMalformedLines(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"\n" +
			"   \n" +
			"not json at all\n" +
			`{"message":{"content":"a"},"done":false}` + "\n" +
			`{"message":{"content":` + "\n" +
			"null\n" +
			`["array"]` + "\n" +
			`{"message":{"content":"b"},"done":true}`,
	)}
	rec := &recorder{}

	out := Run(context.Background(), streamResult(body), Meta{Model: "m"}, rec.emit)

	require.True(t, out.Completed)
	assert.Equal(t, 2, out.Chunks)
	assert.Equal(t, "ab", out.FullContent)

	lines := rec.lines(t)
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"success":true,"chunk":"a","done":false}`, lines[0])
	assert.JSONEq(t, `{"success":true,"chunk":"b","done":true}`, lines[1])
	assert.JSONEq(t, `{"success":true,"done":true,"full_content":"ab","metrics":{},"conversation_id":null,"model":"m"}`, lines[2])
}

func TestRunMissingContentDefaultsToEmpty(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`{"done":false}` + "\n" + `{"message":null,"done":true}` + "\n")}
	rec := &recorder{}

	out := Run(context.Background(), streamResult(body), Meta{}, rec.emit)

	require.True(t, out.Completed)
	assert.Equal(t, 2, out.Chunks)
	assert.Equal(t, "", out.FullContent)
}

func TestComputeMetrics(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		line streamLine
		want model.Metrics
	}{
		{
			name: "all counters",
			line: streamLine{EvalCount: 100, EvalDuration: 3e9, PromptEvalDuration: 5e8, LoadDuration: 1.234e9},
			want: model.Metrics{TokensPerSecond: f(33.33), GenerationTimeSec: f(3), PromptProcessingTimeSec: f(0.5), LoadTimeSec: f(1.23)},
		},
		{
			name: "zero eval duration",
			line: streamLine{EvalCount: 100, PromptEvalDuration: 2e9},
			want: model.Metrics{PromptProcessingTimeSec: f(2)},
		},
		{
			name: "zero eval count",
			line: streamLine{EvalDuration: 1.5e9},
			want: model.Metrics{GenerationTimeSec: f(1.5)},
		},
		{
			name: "rounding",
			line: streamLine{EvalCount: 7, EvalDuration: 3e9},
			want: model.Metrics{TokensPerSecond: f(2.33), GenerationTimeSec: f(3)},
		},
		{
			name: "halves round to even",
			line: streamLine{EvalDuration: 1.25e8, LoadDuration: 3.75e8},
			want: model.Metrics{GenerationTimeSec: f(0.12), LoadTimeSec: f(0.38)},
		},
		{
			name: "nothing qualifies",
			line: streamLine{},
			want: model.Metrics{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, *computeMetrics(&tc.line))
		})
	}
}

func TestRunDoneWithoutMetricsOmitsKey(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`{"message":{"content":"x"},"done":true,"eval_count":10,"eval_duration":0}` + "\n")}
	rec := &recorder{}

	Run(context.Background(), streamResult(body), Meta{}, rec.emit)

	lines := rec.lines(t)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "metrics")
	assert.NotContains(t, lines[0], "tokens_per_second")
	assert.Contains(t, lines[1], `"metrics":{}`)
}

func TestRunTransportFault(t *testing.T) {
	reader := &failingReader{
		data: []byte(`{"message":{"content":"partial"},"done":false}` + "\n"),
		err:  errors.New("connection reset by peer"),
	}
	body := &trackingBody{Reader: reader}
	rec := &recorder{}

	out := Run(context.Background(), streamResult(body), Meta{Model: "m"}, rec.emit)

	assert.False(t, out.Completed)
	assert.True(t, model.IsKind(out.Err, model.KindTransportFault))
	assert.Equal(t, "partial", out.FullContent)
	assert.Equal(t, 1, body.closed)

	lines := rec.lines(t)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"success":true,"chunk":"partial","done":false}`, lines[0])
	assert.JSONEq(t, `{"success":false,"message":"stream error: connection reset by peer"}`, lines[1])
}

func TestRunStartFailure(t *testing.T) {
	t.Run("gateway failure", func(t *testing.T) {
		rec := &recorder{}
		out := Run(context.Background(), &llm.ChatResult{Success: false, Message: "chat error: 404"}, Meta{}, rec.emit)

		assert.False(t, out.Completed)
		assert.True(t, model.IsKind(out.Err, model.KindUpstreamUnavailable))
		lines := rec.lines(t)
		require.Len(t, lines, 1)
		assert.JSONEq(t, `{"success":false,"message":"chat error: 404"}`, lines[0])
	})

	t.Run("no body", func(t *testing.T) {
		rec := &recorder{}
		out := Run(context.Background(), &llm.ChatResult{Success: true, Stream: true}, Meta{}, rec.emit)

		assert.False(t, out.Completed)
		require.Len(t, rec.events, 1)
		assert.Equal(t, false, rec.events[0].(*model.ErrorEvent).Success)
	})

	t.Run("nil result", func(t *testing.T) {
		rec := &recorder{}
		out := Run(context.Background(), nil, Meta{}, rec.emit)

		assert.False(t, out.Completed)
		require.Len(t, rec.events, 1)
	})
}

func TestRunStopsWhenEmitterFails(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		`{"message":{"content":"a"},"done":false}` + "\n" +
			`{"message":{"content":"b"},"done":false}` + "\n" +
			`{"message":{"content":"c"},"done":true}` + "\n",
	)}
	writeErr := errors.New("broken pipe")
	calls := 0

	out := Run(context.Background(), streamResult(body), Meta{}, func(event any) error {
		calls++
		if calls == 2 {
			return writeErr
		}
		return nil
	})

	assert.False(t, out.Completed)
	assert.ErrorIs(t, out.Err, writeErr)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, out.Chunks)
	assert.Equal(t, 1, body.closed)
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_, _ = pw.Write([]byte(`{"message":{"content":"first"},"done":false}` + "\n"))
	}()

	var events []any
	done := make(chan *Outcome, 1)
	go func() {
		done <- Run(ctx, streamResult(pr), Meta{}, func(event any) error {
			events = append(events, event)
			cancel()
			return nil
		})
	}()

	out := <-done

	assert.False(t, out.Completed)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, "cancelled", out.Status())
	require.Len(t, events, 1)

	_, err := pw.Write([]byte("more\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
