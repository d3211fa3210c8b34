package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"colorbook-refiner/internal/completion"
)

const systemInstruction = `You write prompts for an image generator that produces black-and-white coloring pages.
Rewrite the user's subject into one vivid paragraph that describes the line-art scene to draw.
Respect the requested complexity, audience age group, line thickness, border and theme.
Describe line art only: no colors, no shading, no text or lettering in the image.
Keep it family friendly and under 120 words. Reply with the description only, no preamble.`

type generation struct {
	text     string
	category string
	prefs    Preferences
}

type output struct {
	prompt string
	method Method
	model  string
	cached bool
}

type strategy interface {
	method() Method
	generate(ctx context.Context, g generation) (output, error)
}

type templateStrategy struct {
	engine *TemplateEngine
}

func (templateStrategy) method() Method { return MethodTemplate }

func (s templateStrategy) generate(_ context.Context, g generation) (output, error) {
	desc := s.engine.Expand(g.text, g.category, g.prefs.Complexity, g.prefs.AgeGroup)
	return output{prompt: BuildInstruction(desc, g.prefs), method: MethodTemplate}, nil
}

type completionStrategy struct {
	completer completion.Completer
	provider  string
	timeout   time.Duration
	catalog   *Catalog
}

func (completionStrategy) method() Method { return MethodGPT }

// generate makes exactly one completion call. Every failure, including a
// panicking completer, comes back as *ExternalServiceError.
func (s completionStrategy) generate(ctx context.Context, g generation) (out output, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "refine.completion")
	span.SetAttributes(attribute.String("completion.provider", s.provider))
	defer func() {
		if r := recover(); r != nil {
			err = &ExternalServiceError{Provider: s.provider, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := s.completer.Complete(ctx, completion.Request{
		SystemInstruction: systemInstruction,
		UserMessage:       userMessage(g),
	})
	if err != nil {
		return output{}, &ExternalServiceError{Provider: s.provider, Err: err}
	}

	text := normalizeText(resp.Text)
	if text == "" {
		return output{}, &ExternalServiceError{Provider: s.provider, Err: completion.ErrEmptyResponse}
	}
	if err := s.catalog.CheckFamilyFriendly(text); err != nil {
		return output{}, &ExternalServiceError{Provider: s.provider, Err: fmt.Errorf("completion rejected: %w", err)}
	}

	span.SetAttributes(attribute.Bool("completion.cached", resp.Cached))
	return output{
		prompt: appendStyle(text),
		method: MethodGPT,
		model:  resp.Model,
		cached: resp.Cached,
	}, nil
}

func userMessage(g generation) string {
	prefs, err := json.Marshal(g.prefs)
	if err != nil {
		prefs = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Subject: " + g.text + "\n")
	b.WriteString("Detected category: " + g.category + "\n")
	b.WriteString("Preferences: " + string(prefs) + "\n")
	return b.String()
}
