package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"colorbook-refiner/internal/refine"
)

var errFellBack = errors.New("refinement fell back to the generic prompt")

type serviceLoader func(ctx context.Context) (*refine.Service, func(), error)

func newRootCmd(load serviceLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "refine",
		Short:         "Turn short subjects into print-ready coloring page prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newPromptCmd(load),
		newBatchCmd(load),
		newClassifyCmd(),
		newCategoriesCmd(),
	)
	return root
}

type promptFlags struct {
	complexity string
	age        string
	lines      string
	border     string
	theme      string
	gpt        bool
	asJSON     bool
}

func newPromptCmd(load serviceLoader) *cobra.Command {
	var f promptFlags

	cmd := &cobra.Command{
		Use:   "prompt [words...]",
		Short: "Refine one subject",
		Example: `  refine prompt a cute dog
  refine prompt --age adults --lines thick --theme nature a cabin in the woods`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res := svc.Refine(cmd.Context(), refine.Request{
				Prompt:         strings.Join(args, " "),
				Customizations: f.customizations(cmd),
				Options:        refine.Options{UseGPT: f.gpt},
			})

			out := cmd.OutOrStdout()
			if f.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				if !res.Success {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Error)
				}
				fmt.Fprintln(out, res.RefinedPrompt)
			}

			if !res.Success {
				return errFellBack
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.complexity, "complexity", "", "simple, medium or detailed")
	cmd.Flags().StringVar(&f.age, "age", "", "kids, teens or adults")
	cmd.Flags().StringVar(&f.lines, "lines", "", "thin, medium or thick")
	cmd.Flags().StringVar(&f.border, "border", "", "with or without")
	cmd.Flags().StringVar(&f.theme, "theme", "", "optional theme")
	cmd.Flags().BoolVar(&f.gpt, "gpt", false, "use the configured completion provider")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// customizations includes only the flags the user actually set, so unset
// flags fall back to defaults instead of failing validation.
func (f promptFlags) customizations(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			out[key] = value
		}
	}
	set("complexity", "complexity", f.complexity)
	set("age", "ageGroup", f.age)
	set("lines", "lineThickness", f.lines)
	set("border", "border", f.border)
	set("theme", "theme", f.theme)
	return out
}

func newBatchCmd(load serviceLoader) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <file.jsonl>",
		Short: "Refine one JSON request per line and print one JSON result per line",
		Long: `Each input line is a request object, for example
{"prompt":"a cute dog","customizations":{"ageGroup":"teens"},"options":{"useGPT":false}}
Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			reqs, err := readRequests(in)
			if err != nil {
				return err
			}

			svc, cleanup, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range svc.RefineBatch(cmd.Context(), reqs, concurrency) {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum refinements in flight")
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func readRequests(r io.Reader) ([]refine.Request, error) {
	var reqs []refine.Request
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var req refine.Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func newClassifyCmd() *cobra.Command {
	var showScores bool

	cmd := &cobra.Command{
		Use:   "classify [words...]",
		Short: "Print the detected category for a subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := refine.LoadDefaultCatalog()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, catalog.DetectCategory(text))
			if !showScores {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range catalog.Scores(text) {
				if s.Score == 0 {
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Category, s.Score, strings.Join(s.Matched, ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&showScores, "scores", false, "also print every matching category with its score")
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories and their keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := refine.LoadDefaultCatalog()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range catalog.Categories() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Name, len(c.Keywords), strings.Join(c.Keywords, ", "))
			}
			return tw.Flush()
		},
	}
}
