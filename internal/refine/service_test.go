package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"colorbook-refiner/internal/completion"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "req-1" }
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	return NewService(cfg)
}

type recordingCompleter struct {
	mu    sync.Mutex
	calls []completion.Request
	fn    func(ctx context.Context, req completion.Request) (completion.Response, error)
}

func (r *recordingCompleter) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	return r.fn(ctx, req)
}

func (r *recordingCompleter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestRefineCuteDog(t *testing.T) {
	svc := newTestService(t, Config{})

	res := svc.Refine(context.Background(), Request{Prompt: "a cute dog", Customizations: map[string]any{}})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "domesticAnimals", res.DetectedCategory)
	want := Preferences{Complexity: "medium", AgeGroup: "kids", LineThickness: "medium", Border: "with"}
	if diff := cmp.Diff(want, res.AppliedSettings); diff != "" {
		t.Fatalf("applied settings mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, res.RefinedPrompt, "dog")
	assert.True(t, strings.HasSuffix(res.RefinedPrompt, StyleSuffix()), res.RefinedPrompt)
	assert.True(t, strings.HasPrefix(res.RefinedPrompt, roleFraming))
	assert.Equal(t, MethodTemplate, res.Metadata.Method)
	assert.Equal(t, "req-1", res.Metadata.RequestID)
	assert.Equal(t, "a cute dog", res.OriginalInput)
	assert.Empty(t, res.Error)
	assert.Equal(t, fixedNow, res.Timestamp)
	assert.Zero(t, res.Metadata.ProcessingTimeMs)
}

func TestRefineEmptyPromptFallsBack(t *testing.T) {
	svc := newTestService(t, Config{})

	res := svc.Refine(context.Background(), Request{Prompt: "", Customizations: map[string]any{}})

	assert.False(t, res.Success)
	assert.Equal(t, MethodFallback, res.Metadata.Method)
	assert.Equal(t, KindValidation, res.Metadata.ErrorKind)
	assert.NotEmpty(t, res.RefinedPrompt)
	assert.Equal(t, GenericInstruction, res.RefinedPrompt)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, DefaultPreferences(), res.AppliedSettings)
}

func TestRefineBlocksKnife(t *testing.T) {
	svc := newTestService(t, Config{})

	res := svc.Refine(context.Background(), Request{Prompt: "a pirate holding a knife"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "knife")
	assert.Equal(t, KindModeration, res.Metadata.ErrorKind)
	assert.Equal(t, MethodFallback, res.Metadata.Method)
	assert.NotContains(t, res.RefinedPrompt, "knife")
	assert.NotEmpty(t, res.RefinedPrompt)
}

func TestRefineOutOfEnumPreferenceUsesDefaults(t *testing.T) {
	svc := newTestService(t, Config{})

	res := svc.Refine(context.Background(), Request{
		Prompt:         "a cute dog",
		Customizations: map[string]any{"complexity": "extreme"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, MethodFallback, res.Metadata.Method)
	assert.Contains(t, res.Error, "complexity")
	assert.Equal(t, DefaultPreferences(), res.AppliedSettings)
	assert.Contains(t, res.RefinedPrompt, "a cute dog")
	assert.True(t, strings.HasSuffix(res.RefinedPrompt, StyleSuffix()))
}

func TestRefineFallbackKeepsValidPreferences(t *testing.T) {
	svc := newTestService(t, Config{})

	res := svc.Refine(context.Background(), Request{
		Prompt:         "a rocket",
		Customizations: map[string]any{"complexity": "extreme", "ageGroup": "adults", "lineThickness": "thick"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, Preferences{
		Complexity:    ComplexityMedium,
		AgeGroup:      AgeAdults,
		LineThickness: LineThick,
		Border:        BorderWith,
	}, res.AppliedSettings)
	assert.Contains(t, res.RefinedPrompt, "for adults with thick outlines")
}

func TestRefineFallbackDropsUnmoderatedInput(t *testing.T) {
	svc := newTestService(t, Config{})

	// preference validation fails before moderation runs
	res := svc.Refine(context.Background(), Request{
		Prompt:         "a gun",
		Customizations: map[string]any{"border": "sometimes"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Metadata.ErrorKind)
	assert.Equal(t, GenericInstruction, res.RefinedPrompt)
}

func TestRefineNonTextPrompt(t *testing.T) {
	svc := newTestService(t, Config{})

	for _, prompt := range []any{nil, 42, []any{"dog"}, map[string]any{"x": 1}} {
		res := svc.Refine(context.Background(), Request{Prompt: prompt})
		assert.False(t, res.Success, "%v", prompt)
		assert.Equal(t, GenericInstruction, res.RefinedPrompt)
		assert.Equal(t, KindValidation, res.Metadata.ErrorKind)
	}

	res := svc.Refine(context.Background(), Request{Prompt: 42})
	assert.Equal(t, "42", res.OriginalInput)
}

func TestRefineOversizedPromptFallbackIsTruncated(t *testing.T) {
	svc := newTestService(t, Config{})

	prompt := strings.Repeat("dogé", 200)
	res := svc.Refine(context.Background(), Request{Prompt: prompt})

	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Metadata.ErrorKind)

	subject := string([]rune(prompt)[:MaxPromptLength])
	assert.Equal(t, MaxPromptLength, utf8.RuneCountInString(subject))
	assert.Equal(t, "Create a medium black-and-white coloring page of "+subject+
		" for kids with medium outlines"+Separator+StyleSuffix(), res.RefinedPrompt)
}

func TestRefineRejectsInflectedBlockedTerms(t *testing.T) {
	svc := newTestService(t, Config{})

	tests := map[string][]string{
		"a horde of zombies":      {"zombie"},
		"cartoon bombs exploding": {"bomb"},
		"two demons dancing":      {"demon"},
		"a murderer in the dark":  {"murder"},
		"a gunfight at noon":      {"gun"},
		"kids smoking cigarettes": {"cigarette", "smoking"},
	}

	for prompt, terms := range tests {
		t.Run(prompt, func(t *testing.T) {
			res := svc.Refine(context.Background(), Request{Prompt: prompt})

			require.False(t, res.Success)
			assert.Equal(t, KindModeration, res.Metadata.ErrorKind)
			assert.Equal(t, GenericInstruction, res.RefinedPrompt)
			assert.Equal(t, "content is not family friendly: "+strings.Join(terms, ", "), res.Error)
		})
	}
}

func TestRefineWithCompletion(t *testing.T) {
	completer := &recordingCompleter{fn: func(ctx context.Context, req completion.Request) (completion.Response, error) {
		return completion.Response{Text: "  A playful puppy chasing a ball in a garden.  ", Model: "gpt-test"}, nil
	}}
	svc := newTestService(t, Config{Completer: completer, CompletionProvider: "openai"})

	res := svc.Refine(context.Background(), Request{Prompt: "a cute dog", Options: Options{UseGPT: true}})

	require.True(t, res.Success)
	assert.Equal(t, MethodGPT, res.Metadata.Method)
	assert.Equal(t, "gpt-test", res.Metadata.Model)
	assert.Equal(t, "domesticAnimals", res.DetectedCategory)
	assert.Equal(t, "A playful puppy chasing a ball in a garden"+Separator+StyleSuffix(), res.RefinedPrompt)

	require.Equal(t, 1, completer.Calls())
	req := completer.calls[0]
	assert.Equal(t, systemInstruction, req.SystemInstruction)
	assert.Contains(t, req.UserMessage, "Subject: a cute dog")
	assert.Contains(t, req.UserMessage, `"complexity":"medium"`)
	assert.Contains(t, req.UserMessage, `"ageGroup":"kids"`)
}

func TestRefineCompletionFailureUsesTemplates(t *testing.T) {
	failures := map[string]func(ctx context.Context, req completion.Request) (completion.Response, error){
		"error": func(context.Context, completion.Request) (completion.Response, error) {
			return completion.Response{}, errors.New("connection refused")
		},
		"empty text": func(context.Context, completion.Request) (completion.Response, error) {
			return completion.Response{Text: "   "}, nil
		},
		"unsafe text": func(context.Context, completion.Request) (completion.Response, error) {
			return completion.Response{Text: "a dog guarding a pile of guns"}, nil
		},
		"panic": func(context.Context, completion.Request) (completion.Response, error) {
			panic("boom")
		},
	}

	for name, fn := range failures {
		t.Run(name, func(t *testing.T) {
			completer := &recordingCompleter{fn: fn}
			svc := newTestService(t, Config{Completer: completer, CompletionProvider: "openai"})

			res := svc.Refine(context.Background(), Request{Prompt: "a cute dog", Options: Options{UseGPT: true}})

			require.True(t, res.Success)
			assert.Equal(t, MethodTemplate, res.Metadata.Method)
			assert.NotEqual(t, MethodGPT, res.Metadata.Method)
			assert.Contains(t, res.Metadata.CompletionError, "openai service")
			assert.True(t, strings.HasSuffix(res.RefinedPrompt, StyleSuffix()))
			assert.Equal(t, 1, completer.Calls())
		})
	}
}

func TestRefineCompletionTimeout(t *testing.T) {
	completer := &recordingCompleter{fn: func(ctx context.Context, _ completion.Request) (completion.Response, error) {
		<-ctx.Done()
		return completion.Response{}, ctx.Err()
	}}
	svc := newTestService(t, Config{Completer: completer, CompletionTimeout: time.Hour, Now: time.Now})

	start := time.Now()
	res := svc.Refine(context.Background(), Request{
		Prompt:  "a cute dog",
		Options: Options{UseGPT: true, Timeout: 20 * time.Millisecond},
	})

	assert.Less(t, time.Since(start), 5*time.Second)
	require.True(t, res.Success)
	assert.Equal(t, MethodTemplate, res.Metadata.Method)
	assert.Contains(t, res.Metadata.CompletionError, context.DeadlineExceeded.Error())
}

func TestRefineCompletionSkipped(t *testing.T) {
	completer := &recordingCompleter{fn: func(context.Context, completion.Request) (completion.Response, error) {
		return completion.Response{Text: "should not be used"}, nil
	}}

	t.Run("mock mode", func(t *testing.T) {
		svc := newTestService(t, Config{Completer: completer, MockMode: true})
		assert.False(t, svc.CompletionEnabled())

		res := svc.Refine(context.Background(), Request{Prompt: "a cute dog", Options: Options{UseGPT: true}})
		assert.Equal(t, MethodTemplate, res.Metadata.Method)
		assert.Empty(t, res.Metadata.CompletionError)
	})

	t.Run("not requested", func(t *testing.T) {
		svc := newTestService(t, Config{Completer: completer})
		res := svc.Refine(context.Background(), Request{Prompt: "a cute dog"})
		assert.Equal(t, MethodTemplate, res.Metadata.Method)
	})

	t.Run("no completer", func(t *testing.T) {
		svc := newTestService(t, Config{})
		res := svc.Refine(context.Background(), Request{Prompt: "a cute dog", Options: Options{UseGPT: true}})
		assert.Equal(t, MethodTemplate, res.Metadata.Method)
	})

	assert.Zero(t, completer.Calls())
}

func TestRefineRecoversFromPanics(t *testing.T) {
	svc := newTestService(t, Config{})
	svc.template = templateStrategy{}

	res := svc.Refine(context.Background(), Request{Prompt: "a cute dog"})

	assert.False(t, res.Success)
	assert.Equal(t, MethodFallback, res.Metadata.Method)
	assert.Equal(t, KindCatastrophic, res.Metadata.ErrorKind)
	assert.Contains(t, res.Error, "generate")
	assert.Contains(t, res.RefinedPrompt, "a cute dog")
}

func TestRefineLogsStageOutcomes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, Config{Logger: zap.New(core)})

	svc.Refine(context.Background(), Request{Prompt: "a cute dog"})
	svc.Refine(context.Background(), Request{Prompt: "a knife"})

	refined := logs.FilterMessage("prompt refined").All()
	require.Len(t, refined, 1)
	assert.Equal(t, zapcore.InfoLevel, refined[0].Level)
	assert.Equal(t, "domesticAnimals", refined[0].ContextMap()["category"])

	rejected := logs.FilterMessage("refine input rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, KindModeration, rejected[0].ContextMap()["kind"])
}

func TestRefineBatchKeepsOrder(t *testing.T) {
	var ids atomic.Int64
	svc := newTestService(t, Config{NewID: func() string { return fmt.Sprint(ids.Add(1)) }})

	reqs := make([]Request, 0, 12)
	for i := 0; i < 12; i++ {
		prompt := fmt.Sprintf("a dog number %d", i)
		if i%4 == 3 {
			prompt = ""
		}
		reqs = append(reqs, Request{Prompt: prompt})
	}

	results := svc.RefineBatch(context.Background(), reqs, 3)

	require.Len(t, results, len(reqs))
	for i, res := range results {
		if i%4 == 3 {
			assert.False(t, res.Success, i)
			continue
		}
		assert.True(t, res.Success, i)
		assert.Contains(t, res.RefinedPrompt, fmt.Sprintf("a dog number %d", i))
	}
	assert.Equal(t, int64(12), ids.Load())
}

func TestRefineConcurrentCallers(t *testing.T) {
	svc := newTestService(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.Refine(context.Background(), Request{Prompt: "a unicorn in a castle"})
			assert.True(t, res.Success)
			assert.Equal(t, "fantasyCreatures", res.DetectedCategory)
		}()
	}
	wg.Wait()
}

func TestErrorKind(t *testing.T) {
	assert.Empty(t, ErrorKind(nil))
	assert.Equal(t, KindCatastrophic, ErrorKind(errors.New("x")))
	assert.Equal(t, KindCatastrophic, ErrorKind(&CatastrophicFailure{Stage: "generate", Cause: "boom"}))

	wrapped := &ExternalServiceError{Provider: "gemini", Err: fmt.Errorf("rejected: %w", &ModerationError{Terms: []string{"gun"}})}
	assert.Equal(t, KindExternal, ErrorKind(wrapped))
	assert.Equal(t, "gemini service: rejected: content is not family friendly: gun", wrapped.Error())
}
