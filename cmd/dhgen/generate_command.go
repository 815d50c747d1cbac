package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dhgen/internal/generation"
	"dhgen/internal/services"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		async    bool
		asJSON   bool
		timeout  time.Duration
		output   string
		positive string
		negative string
		slots    []string
	)
	cmd := &cobra.Command{
		Use:   "generate <character> <text|->",
		Short: "Generate a talking video for a character",
		Long: "Generate uploads the character's reference files, submits the workflow and, unless\n" +
			"--async is given, waits for the job and downloads its artifacts. Pass - as the\n" +
			"text to read it from stdin until EOF or a line containing only quit.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			text := args[1]
			if text == "-" {
				var err error
				if text, err = readText(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			overrides, err := parseSlots(slots)
			if err != nil {
				return err
			}
			logger, err := ctx.loggerValue()
			if err != nil {
				return err
			}
			orch, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}

			req := generation.Request{
				Character: args[0],
				Text:      text,
				Overrides: generation.Overrides{
					PositivePrompt: positive,
					NegativePrompt: negative,
					Slots:          overrides,
				},
				Timeout:   timeout,
				OutputDir: output,
			}

			out := cmd.OutOrStdout()
			if async {
				res, err := orch.RunAsync(cmd.Context(), req)
				if err != nil {
					return ctx.withSuggestions(args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, res)
				}
				fmt.Fprintf(out, "Submitted job %s for %s\n", res.JobID, res.Character)
				fmt.Fprintf(out, "Follow it with: dhgen monitor %s\n", res.JobID)
				return nil
			}

			progress := newProgressRenderer(cmd.ErrOrStderr(), logger)
			req.Progress = progress.update
			res, err := orch.RunSync(cmd.Context(), req)
			progress.finish()
			if res == nil {
				return ctx.withSuggestions(args[0], err)
			}
			if asJSON {
				if jerr := writeJSON(cmd, res); jerr != nil {
					return jerr
				}
			} else {
				printResult(out, res)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Return after submission without waiting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Monitoring deadline (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Download directory (default from config)")
	cmd.Flags().StringVar(&positive, "positive", "", "Positive prompt override")
	cmd.Flags().StringVar(&negative, "negative", "", "Negative prompt override")
	cmd.Flags().StringArrayVar(&slots, "set", nil, "Set a workflow binding slot (slot=value, repeatable)")
	return cmd
}

// readText collects lines until EOF or a line reading "quit".
func readText(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "quit") {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", services.Wrap(services.ErrValidation, "cli", "read text", "read stdin", err)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func parseSlots(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	slots := make(map[string]string, len(values))
	for _, raw := range values {
		slot, value, ok := strings.Cut(raw, "=")
		slot = strings.ToLower(strings.TrimSpace(slot))
		if !ok || slot == "" {
			return nil, services.Wrap(services.ErrValidation, "cli", "parse --set",
				fmt.Sprintf("%q must look like slot=value", raw), nil)
		}
		slots[slot] = value
	}
	return slots, nil
}
