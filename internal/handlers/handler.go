package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"colorbook-refiner/internal/refine"
	"colorbook-refiner/internal/session"
	"colorbook-refiner/internal/telegram"
)

type Messenger interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64)
}

type Refiner interface {
	Refine(ctx context.Context, req refine.Request) refine.Result
	Catalog() *refine.Catalog
	CompletionEnabled() bool
}

type Options struct {
	Telegram Messenger
	Refiner  Refiner
	Sessions *session.Store
	Logger   *zap.Logger
}

type Handler struct {
	tg       Messenger
	refiner  Refiner
	sessions *session.Store
	logger   *zap.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}

	return &Handler{
		tg:       opts.Telegram,
		refiner:  opts.Refiner,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	var userID int64
	var username string
	if msg.From != nil {
		userID = msg.From.ID
		username = msg.From.UserName
	} else {
		userID = chatID
	}

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, username, msg)
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return h.refineAndReply(ctx, chatID, userID, username, Args{Customizations: map[string]string{}, Text: text})
	}

	return nil
}

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, username string, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"🖍 Coloring page prompt refiner\n\n"+
				"Send me a subject like \"a cute dog\" and I will turn it into a print-ready coloring page prompt.\n\n"+
				helpText,
		)
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "refine":
		args := ParseArgs(msg.CommandArguments())
		if args.Text == "" {
			return h.tg.SendText(chatID, "❌ Please describe the subject.\nExample: /refine adults thick a lighthouse by the sea")
		}
		return h.refineAndReply(ctx, chatID, userID, username, args)
	case "set":
		args := ParseArgs(msg.CommandArguments())
		if args.Text != "" {
			return h.tg.SendText(chatID, fmt.Sprintf("❌ Unknown option: %s\n\n%s", strings.Fields(args.Text)[0], optionsText))
		}
		if len(args.Customizations) == 0 && args.UseGPT == nil {
			return h.tg.SendText(chatID, optionsText)
		}
		if _, err := refine.ValidateCustomizations(toCustomizations(nil, args.Customizations)); err != nil {
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		sess := h.sessions.SetPreferences(userID, username, args.Customizations, args.UseGPT)
		return h.tg.SendText(chatID, "✅ Saved.\n\n"+h.settingsText(sess))
	case "settings":
		return h.tg.SendText(chatID, h.settingsText(h.sessions.Snapshot(userID, username)))
	case "reset":
		h.sessions.Reset(userID)
		return h.tg.SendText(chatID, "✅ Preferences and history cleared.")
	case "categories":
		return h.tg.SendText(chatID, categoriesText(h.refiner.Catalog()))
	case "history":
		return h.tg.SendText(chatID, historyText(h.sessions.Snapshot(userID, username).History))
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) refineAndReply(ctx context.Context, chatID, userID int64, username string, args Args) error {
	h.tg.SendTyping(chatID)

	sess := h.sessions.Snapshot(userID, username)
	useGPT := sess.UseGPT
	if args.UseGPT != nil {
		useGPT = *args.UseGPT
	}

	res := h.refiner.Refine(ctx, refine.Request{
		Prompt:         args.Text,
		Customizations: toCustomizations(sess.Customizations, args.Customizations),
		Options:        refine.Options{UseGPT: useGPT},
	})

	h.sessions.Append(userID, username, session.HistoryEntry{
		Prompt:   args.Text,
		Refined:  res.RefinedPrompt,
		Category: res.DetectedCategory,
		Success:  res.Success,
		At:       res.Timestamp,
	})

	if !res.Success {
		h.logger.Info("refine fell back",
			zap.Int64("chat_id", chatID),
			zap.String("request_id", res.Metadata.RequestID),
			zap.String("kind", res.Metadata.ErrorKind),
		)
	}

	return h.tg.SendText(chatID, resultText(res))
}

func (h *Handler) settingsText(sess session.Session) string {
	prefs := refine.DefaultPreferences()
	if custom, err := refine.ValidateCustomizations(toCustomizations(sess.Customizations, nil)); err == nil {
		prefs = custom.WithDefaults()
	}

	var b strings.Builder
	b.WriteString("⚙️ Current settings\n")
	fmt.Fprintf(&b, "complexity: %s\n", prefs.Complexity)
	fmt.Fprintf(&b, "ageGroup: %s\n", prefs.AgeGroup)
	fmt.Fprintf(&b, "lineThickness: %s\n", prefs.LineThickness)
	fmt.Fprintf(&b, "border: %s\n", prefs.Border)
	theme := string(prefs.Theme)
	if theme == "" {
		theme = "none"
	}
	fmt.Fprintf(&b, "theme: %s\n", theme)

	switch {
	case !sess.UseGPT:
		b.WriteString("gpt: off")
	case h.refiner.CompletionEnabled():
		b.WriteString("gpt: on")
	default:
		b.WriteString("gpt: on (unavailable, templates are used)")
	}
	return b.String()
}

func resultText(res refine.Result) string {
	if res.Success {
		return fmt.Sprintf("✅ %s · %s\n\n%s", res.DetectedCategory, res.Metadata.Method, res.RefinedPrompt)
	}
	return fmt.Sprintf("⚠️ %s\n\nFallback prompt:\n\n%s", res.Error, res.RefinedPrompt)
}

func categoriesText(catalog *refine.Catalog) string {
	var b strings.Builder
	b.WriteString("📚 Categories\n")
	for _, c := range catalog.Categories() {
		if len(c.Keywords) == 0 {
			continue
		}
		examples := c.Keywords
		if len(examples) > 4 {
			examples = examples[:4]
		}
		fmt.Fprintf(&b, "• %s: %s\n", c.Name, strings.Join(examples, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyText(history []session.HistoryEntry) string {
	if len(history) == 0 {
		return "No prompts yet. Send me a subject to get started."
	}

	var b strings.Builder
	b.WriteString("🕘 Recent prompts\n")
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		mark := "✅"
		if !e.Success {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "%s %s", mark, e.Prompt)
		if e.Category != "" {
			fmt.Fprintf(&b, " (%s)", e.Category)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var optionsText = func() string {
	var b strings.Builder
	b.WriteString("Options (key=value or shortcut):\n")
	for _, f := range refine.PreferenceFields() {
		fmt.Fprintf(&b, "• %s=%s\n", f.Key, strings.Join(f.Values, "|"))
	}

	shortcuts := make([]string, 0, len(shortcutTokens))
	for tok := range shortcutTokens {
		shortcuts = append(shortcuts, tok)
	}
	sort.Strings(shortcuts)
	fmt.Fprintf(&b, "Shortcuts: %s\n", strings.Join(shortcuts, ", "))
	b.WriteString("gpt / nogpt toggles AI enhancement")
	return b.String()
}()

const helpText = "Commands:\n" +
	"/refine [options] <subject> - refine one subject\n" +
	"/set <options> - save default options\n" +
	"/settings - show saved options\n" +
	"/reset - clear options and history\n" +
	"/categories - list known categories\n" +
	"/history - recent prompts\n\n" +
	"Example: /refine adults thick theme=nature a cabin in the woods\n" +
	"Plain text is refined with your saved options."
