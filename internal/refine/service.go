// Package refine turns a free-text subject and style preferences into a
// moderated, classified coloring-page instruction. Service.Refine never
// fails: problems surface as a fallback Result with Success=false.
package refine

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"colorbook-refiner/internal/completion"
)

const (
	defaultCompletionTimeout = 15 * time.Second
	defaultBatchLimit        = 4
)

var tracer = otel.Tracer("colorbook-refiner/internal/refine")

type Config struct {
	Catalog   *Catalog
	Templates *TemplateEngine

	// Completer is optional; without it UseGPT requests use templates.
	Completer          completion.Completer
	CompletionProvider string
	CompletionTimeout  time.Duration
	// MockMode disables the completion path regardless of UseGPT.
	MockMode bool

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Service is safe for concurrent use; it holds only immutable state.
type Service struct {
	catalog    *Catalog
	template   templateStrategy
	completion *completionStrategy
	mockMode   bool
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(cfg Config) *Service {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	templates := cfg.Templates
	if templates == nil {
		templates = NewTemplateEngine()
	}
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	s := &Service{
		catalog:  catalog,
		template: templateStrategy{engine: templates},
		mockMode: cfg.MockMode,
		timeout:  timeout,
		logger:   logger,
		now:      now,
		newID:    newID,
	}
	if cfg.Completer != nil {
		provider := cfg.CompletionProvider
		if provider == "" {
			provider = "completion"
		}
		s.completion = &completionStrategy{
			completer: cfg.Completer,
			provider:  provider,
			timeout:   timeout,
			catalog:   catalog,
		}
	}
	return s
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// CompletionEnabled reports whether UseGPT requests can reach a completer.
func (s *Service) CompletionEnabled() bool {
	return s.completion != nil && !s.mockMode
}

// Refine runs validate, configure, generate and assemble, and degrades to a
// fallback instruction on any failure.
func (s *Service) Refine(ctx context.Context, req Request) Result {
	start := s.now()
	requestID := s.newID()

	ctx, span := tracer.Start(ctx, "refine.Refine", trace.WithAttributes(
		attribute.String("refine.request_id", requestID),
		attribute.Bool("refine.use_gpt", req.Options.UseGPT),
	))
	defer span.End()

	logger := s.logger.With(zap.String("request_id", requestID))

	res, err := s.run(ctx, req, logger)
	if err != nil {
		span.RecordError(err)
		res = s.fallback(req, err, logger)
	}

	res.OriginalInput = bestEffortString(req.Prompt)
	res.Metadata.RequestID = requestID
	res.Timestamp = s.now().UTC()
	res.Metadata.ProcessingTimeMs = res.Timestamp.Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.String("refine.method", string(res.Metadata.Method)),
		attribute.String("refine.category", res.DetectedCategory),
		attribute.Bool("refine.success", res.Success),
	)
	return res
}

// RefineBatch refines reqs concurrently, at most limit at a time. Results keep
// the input order.
func (s *Service) RefineBatch(ctx context.Context, reqs []Request, limit int) []Result {
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = s.Refine(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) run(ctx context.Context, req Request, logger *zap.Logger) (res Result, err error) {
	stage := "validate"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("refine panicked", zap.String("stage", stage), zap.Any("panic", r), zap.Stack("stack"))
			err = &CatastrophicFailure{Stage: stage, Cause: r}
		}
	}()

	text, err := SanitizeText(req.Prompt)
	if err != nil {
		return Result{}, err
	}
	custom, err := ValidateCustomizations(req.Customizations)
	if err != nil {
		return Result{}, err
	}
	if err := s.catalog.CheckFamilyFriendly(text); err != nil {
		return Result{}, err
	}
	logger.Debug("refine input validated", zap.Int("length", utf8.RuneCountInString(text)))

	stage = "configure"
	prefs := custom.WithDefaults()

	stage = "generate"
	g := generation{
		text:     text,
		category: s.catalog.DetectCategory(text),
		prefs:    prefs,
	}

	primary := s.selectStrategy(req.Options, logger)
	out, err := primary.generate(ctx, g)
	var completionErr error
	if err != nil && primary.method() != MethodTemplate {
		completionErr = err
		logger.Warn("completion failed, using templates", zap.Error(err))
		out, err = s.template.generate(ctx, g)
	}
	if err != nil {
		return Result{}, err
	}

	stage = "assemble"
	res = Result{
		Success:          true,
		RefinedPrompt:    out.prompt,
		DetectedCategory: g.category,
		AppliedSettings:  prefs,
		Metadata: Metadata{
			Method: out.method,
			Model:  out.model,
			Cached: out.cached,
		},
	}
	if completionErr != nil {
		res.Metadata.CompletionError = completionErr.Error()
	}

	logger.Info("prompt refined",
		zap.String("method", string(out.method)),
		zap.String("category", g.category),
		zap.String("complexity", string(prefs.Complexity)),
		zap.String("age_group", string(prefs.AgeGroup)),
	)
	return res, nil
}

func (s *Service) selectStrategy(opts Options, logger *zap.Logger) strategy {
	if !opts.UseGPT {
		return s.template
	}
	if !s.CompletionEnabled() {
		logger.Debug("completion requested but unavailable", zap.Bool("mock_mode", s.mockMode))
		return s.template
	}
	cs := *s.completion
	if opts.Timeout > 0 {
		cs.timeout = opts.Timeout
	}
	return cs
}

// fallback always returns a usable instruction. Raw input is reused only when
// it passes moderation on its own.
func (s *Service) fallback(req Request, cause error, logger *zap.Logger) (res Result) {
	kind := ErrorKind(cause)
	switch kind {
	case KindValidation, KindModeration:
		logger.Warn("refine input rejected", zap.String("kind", kind), zap.Error(cause))
	default:
		logger.Error("refine failed", zap.String("kind", kind), zap.Error(cause))
	}

	res = Result{
		Success:         false,
		RefinedPrompt:   GenericInstruction,
		AppliedSettings: DefaultPreferences(),
		Error:           cause.Error(),
		Metadata:        Metadata{Method: MethodFallback, ErrorKind: kind},
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fallback builder panicked", zap.Any("panic", r))
			res.RefinedPrompt = GenericInstruction
			res.AppliedSettings = DefaultPreferences()
		}
	}()

	prefs := salvagePreferences(req.Customizations).WithDefaults()
	res.AppliedSettings = prefs

	subject := fallbackSubject(req.Prompt)
	if subject != "" && s.catalog.CheckFamilyFriendly(subject) != nil {
		subject = ""
	}
	res.RefinedPrompt = fallbackInstruction(subject, prefs)
	return res
}

func fallbackSubject(raw any) string {
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case *string:
		if v == nil {
			return ""
		}
		text = *v
	default:
		return ""
	}

	text = normalizeText(text)
	if utf8.RuneCountInString(text) > MaxPromptLength {
		runes := []rune(text)
		text = normalizeText(string(runes[:MaxPromptLength]))
	}
	return text
}

func fallbackInstruction(subject string, prefs Preferences) string {
	if subject == "" {
		return GenericInstruction
	}
	return fmt.Sprintf("Create a %s black-and-white coloring page of %s for %s with %s outlines",
		prefs.Complexity, subject, prefs.AgeGroup, prefs.LineThickness) + Separator + StyleSuffix()
}

func bestEffortString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	default:
		return fmt.Sprint(v)
	}
}
