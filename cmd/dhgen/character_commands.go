package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dhgen/internal/character"
	"dhgen/internal/services"
)

type characterView struct {
	Name        string   `json:"name"`
	Valid       bool     `json:"valid"`
	Audio       string   `json:"audio,omitempty"`
	Visual      string   `json:"visual,omitempty"`
	VisualKind  string   `json:"visual_kind,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List characters and whether they are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolverValue()
			if err != nil {
				return err
			}
			assets, failures, err := resolver.List()
			if err != nil {
				return err
			}

			views := make([]characterView, 0, len(assets)+len(failures))
			for _, asset := range assets {
				views = append(views, characterView{
					Name:        asset.Name,
					Valid:       true,
					Audio:       asset.AudioFile(),
					Visual:      asset.VisualFile(),
					VisualKind:  string(asset.VisualKind),
					Description: asset.Config.Description(),
					Tags:        asset.Config.Tags(),
					Warnings:    asset.Validation.Warnings,
				})
			}
			for name, ferr := range failures {
				views = append(views, characterView{Name: name, Error: ferr.Error()})
			}
			sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

			if asJSON {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintf(out, "No characters found in %s\n", resolver.Root())
				fmt.Fprintln(out, "Run `dhgen init` to create an example character.")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				status := "ready"
				if !v.Valid {
					status = "invalid"
				}
				visual := v.Visual
				if visual != "" {
					visual += " (" + v.VisualKind + ")"
				}
				rows = append(rows, []string{v.Name, status, v.Audio, visual, v.Description})
			}
			fmt.Fprintln(out, renderTable([]string{"Name", "Status", "Audio", "Visual", "Description"}, rows, nil))
			for _, v := range views {
				if !v.Valid {
					fmt.Fprintf(out, "%s: %s\n", v.Name, v.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <character>",
		Short: "Show the files and settings a character resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolverValue()
			if err != nil {
				return err
			}
			asset, err := resolver.Resolve(args[0])
			if err != nil {
				return ctx.withSuggestions(args[0], err)
			}
			pairs := [][2]string{
				{"Name", asset.Name},
				{"Directory", asset.Dir()},
				{"Audio", describeFile(asset.AudioPath)},
				{"Visual", describeFile(asset.VisualPath) + " [" + string(asset.VisualKind) + "]"},
			}
			if d := asset.Config.Description(); d != "" {
				pairs = append(pairs, [2]string{"Description", d})
			}
			if tags := asset.Config.Tags(); len(tags) > 0 {
				pairs = append(pairs, [2]string{"Tags", strings.Join(tags, ", ")})
			}
			if p := asset.Config.PositivePrompt(); p != "" {
				pairs = append(pairs, [2]string{"Positive prompt", p})
			}
			if p := asset.Config.NegativePrompt(); p != "" {
				pairs = append(pairs, [2]string{"Negative prompt", p})
			}
			if params := asset.Config.WorkflowParams(); len(params) > 0 {
				keys := make([]string, 0, len(params))
				for k := range params {
					keys = append(keys, fmt.Sprintf("%s=%v", k, params[k]))
				}
				sort.Strings(keys)
				pairs = append(pairs, [2]string{"Workflow params", strings.Join(keys, " ")})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDetails(pairs))
			for _, w := range asset.Validation.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
}

func describeFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s (%s)", info.Name(), humanize.IBytes(uint64(info.Size())))
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <character>",
		Short: "Check a character directory for usable reference files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := ctx.resolverValue()
			if err != nil {
				return err
			}
			result, err := resolver.Validate(args[0])
			if err != nil {
				return err
			}
			for _, reason := range result.Errors {
				if reason == character.ReasonMissingDirectory {
					notFound := services.Wrap(services.ErrNotFound, "character", "validate",
						fmt.Sprintf("character %q not found in %s", result.Name, resolver.Root()), nil)
					return ctx.withSuggestions(args[0], notFound)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.DetailedSummary())
			if !result.IsValid {
				return &services.ValidationError{Name: result.Name, Reasons: result.Errors}
			}
			return nil
		},
	}
}

func newInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init [character]",
		Short: "Create the characters directory and an example character",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := "example"
			if len(args) == 1 {
				name = args[0]
			}
			dir, err := character.Scaffold(cfg.Paths.CharactersDir, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created character directory %s\n", dir)
			fmt.Fprintln(out, "Add one reference audio clip and one image or video, then run:")
			fmt.Fprintf(out, "  dhgen validate %s\n", character.SanitizeName(name))
			return nil
		},
	}
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	var clearCache bool
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Resolve every character and report resolver cache occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolver, err := ctx.resolverValue()
			if err != nil {
				return err
			}
			if _, _, err := resolver.List(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if clearCache {
				resolver.Clear()
				fmt.Fprintln(out, "Cache cleared")
			}
			stats := resolver.Stats()
			rows := [][]string{{
				fmt.Sprintf("%d", stats.Total),
				fmt.Sprintf("%d", stats.Active),
				fmt.Sprintf("%d", stats.Expired),
				cfg.CacheTTL().String(),
			}}
			fmt.Fprintln(out, renderTable([]string{"Entries", "Active", "Expired", "TTL"}, rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCache, "clear", false, "Drop cached entries after warming")
	return cmd
}
