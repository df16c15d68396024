package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name    string
	replies []string
	errs    []error
	calls   int
	system  string
	user    string
	closed  bool
}

func (f *fakeProvider) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	f.system, f.user = systemPrompt, userPrompt
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no more replies")
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"provider": f.name}
}

func TestMultiProvider_UsesCurrentProvider(t *testing.T) {
	p := &fakeProvider{name: "a", replies: []string{"[]"}}
	c := NewMultiProvider([]Provider{p}, 600, 3, zap.NewNop())

	out, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "sys", p.system)
	assert.Equal(t, "usr", p.user)
}

func TestMultiProvider_FallsBackOnError(t *testing.T) {
	a := &fakeProvider{name: "a", errs: []error{errors.New("status 429: rate limit")}}
	b := &fakeProvider{name: "b", replies: []string{"ok"}}
	c := NewMultiProvider([]Provider{a, b}, 600, 3, zap.NewNop())

	out, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "b", c.GetModelInfo()["provider"])
}

func TestMultiProvider_AllFail(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeProvider{name: "a", errs: []error{boom}}
	b := &fakeProvider{name: "b", errs: []error{boom}}
	c := NewMultiProvider([]Provider{a, b}, 600, 3, zap.NewNop())

	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, boom)
}

func TestMultiProvider_SingleProviderKeepsCountingFailures(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeProvider{name: "a", errs: []error{boom, boom, nil}, replies: []string{"", "", "ok"}}
	c := NewMultiProvider([]Provider{a}, 600, 5, zap.NewNop())

	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, 2, c.GetModelInfo()["failure_count"])

	out, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 0, c.GetModelInfo()["failure_count"])
}

func TestMultiProvider_CancelledContext(t *testing.T) {
	a := &fakeProvider{name: "a", replies: []string{"ok"}}
	c := NewMultiProvider([]Provider{a}, 600, 3, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, "s", "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.calls)
}

func TestMultiProvider_Close(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	c := NewMultiProvider([]Provider{a, b}, 600, 3, zap.NewNop())
	require.NoError(t, c.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Len(t, c.GetProvidersInfo(), 2)
}

func TestRateLimitedProvider_WaitsForToken(t *testing.T) {
	a := &fakeProvider{name: "a", replies: []string{"1", "2"}}
	p := NewRateLimitedProvider(a, "a", 1)

	_, err := p.Complete(context.Background(), "s", "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Complete(ctx, "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait cancelled")
	assert.Equal(t, 1, a.calls)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, isRateLimitError(errors.New("API returned status 429")))
	assert.True(t, isRateLimitError(errors.New("Quota exceeded")))
	assert.True(t, isRateLimitError(errors.New("rate limit reached")))
	assert.False(t, isRateLimitError(errors.New("bad gateway")))
	assert.False(t, isRateLimitError(nil))
}

func TestNewProvider_UnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: "mystery"}, zap.NewNop())
	assert.Error(t, err)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, "https://api.groq.com/openai/v1", baseURLFor(ProviderConfig{Type: ProviderGroq}))
	assert.Equal(t, "https://openrouter.ai/api/v1", baseURLFor(ProviderConfig{Type: ProviderOpenRouter}))
	assert.Equal(t, "https://api.openai.com/v1", baseURLFor(ProviderConfig{Type: ProviderOpenAI}))
	assert.Equal(t, "http://local", baseURLFor(ProviderConfig{Type: ProviderOpenAI, BaseURL: "http://local"}))
}
