package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/snapshot"
	"github.com/Ekorz-boop/ragflow/internal/template"
	"github.com/Ekorz-boop/ragflow/internal/tui"
)

// errInvalid is returned after an invalid verdict has been printed.
var errInvalid = errors.New("pipeline is invalid")

func printReport(w io.Writer, path string, r *template.LoadReport) {
	fmt.Fprintf(w, "  %s %s: %d blocks, %d connections\n", StatusIcon(true), filepath.Base(path), r.Blocks, r.Connections)
	for _, c := range r.Skipped {
		fmt.Fprintf(w, "  %s skipped %s -> %s (%s)\n", Warn.Sprint("!"), c.Source, c.Target, c.InputID)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", Warn.Sprint("!"), msg)
	}
}

func validateCmd() *cobra.Command {
	var (
		remote bool
		debug  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <template.json>",
		Short: "Check that a saved pipeline is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s := newSession(cfg, nil)
			defer s.Close()

			var opts template.LoadOptions
			if remote {
				client, err := newBackend(cfg)
				if err != nil {
					return err
				}
				opts.Validator = client
			}

			out := cmd.OutOrStdout()
			Banner(out, "validate")
			report, err := loadPipeline(cmd.Context(), s, args[0], opts)
			if err != nil {
				return err
			}
			printReport(out, args[0], report)

			res := s.Validate(debug || cfg.Editor.DebugMode)
			if !res.Valid {
				fmt.Fprintf(out, "  %s %s\n", StatusIcon(false), res.Error)
				return errInvalid
			}
			fmt.Fprintf(out, "  %s pipeline is valid\n", StatusIcon(true))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also let the backend check the template")
	cmd.Flags().BoolVar(&debug, "debug", false, "Validate in debug mode (no ai_model required)")
	return cmd
}

func summarize(v any, n int) string {
	s := strings.Join(strings.Fields(fmt.Sprint(v)), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func runCmd() *cobra.Command {
	var (
		debug bool
		save  string
	)

	cmd := &cobra.Command{
		Use:   "run <template.json>",
		Short: "Load a saved pipeline and run every block on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			s := newSession(cfg, client)
			defer s.Close()
			if debug {
				s.SetDebug(true)
			}

			out := cmd.OutOrStdout()
			Banner(out, "run")
			report, err := loadPipeline(cmd.Context(), s, args[0], template.LoadOptions{Introspector: client})
			if err != nil {
				return err
			}
			printReport(out, args[0], report)

			run, err := s.Engine().RunAll(cmd.Context())
			s.Engine().Wait()
			printBlocks(out, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n  %s %d blocks in %s\n", StatusIcon(true), len(run.Processed), run.Duration.Round(time.Millisecond))

			for _, b := range s.Blocks() {
				if b.Type == editor.TypeDisplay && b.Content != "" {
					fmt.Fprintf(out, "\n%s\n%s\n", Brand.Sprint(b.ID), b.Content)
				}
			}

			if save != "" {
				if err := savePipeline(s, save, strings.TrimSuffix(filepath.Base(save), ".json")); err != nil {
					return err
				}
				fmt.Fprintf(out, "\n  saved %s\n", save)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Run in debug mode")
	cmd.Flags().StringVar(&save, "save", "", "Save the pipeline with its outputs to this file")
	return cmd
}

func printBlocks(w io.Writer, s *editor.Session) {
	var rows [][]string
	for _, b := range s.Blocks() {
		detail := ""
		switch {
		case b.Error != "":
			detail = Bad.Sprint(summarize(b.Error, 60))
		case b.HasOutput:
			detail = summarize(b.Output, 60)
		}
		rows = append(rows, []string{b.ID, b.Label(), string(b.Status), detail})
	}
	fmt.Fprintln(w)
	Table(w, []string{"BLOCK", "KIND", "STATUS", "OUTPUT"}, rows)
}

func snapshotCmd() *cobra.Command {
	var (
		output string
		opts   snapshot.Options
	)

	cmd := &cobra.Command{
		Use:   "snapshot <template.json>",
		Short: "Render a saved pipeline to a PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s := newSession(cfg, nil)
			defer s.Close()

			if _, err := loadPipeline(cmd.Context(), s, args[0], template.LoadOptions{}); err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".png"
			}
			if err := snapshot.SavePNG(output, s.Render(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s wrote %s\n", StatusIcon(true), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <template>.png)")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "Image width (0 fits the pipeline)")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "Image height (0 fits the pipeline)")
	cmd.Flags().Float64Var(&opts.Padding, "padding", 0, "Padding around the pipeline")
	return cmd
}

func editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit [template.json]",
		Short: "Open the terminal editor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			s := newSession(cfg, client)
			defer s.Close()

			path := "pipeline.json"
			if len(args) == 1 {
				path = args[0]
				if _, err := os.Stat(path); err == nil {
					if _, err := loadPipeline(cmd.Context(), s, path, template.LoadOptions{Introspector: client}); err != nil {
						return err
					}
				}
			}
			return tui.Run(s, path)
		},
	}
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <template.json>",
		Short: "Let the backend generate code for a saved pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tpl, err := template.Parse(data)
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".py"
			}

			code, err := client.Export(cmd.Context(), tpl.Blocks, tpl.Connections, filepath.Base(output))
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), code)
				return nil
			}
			if err := os.WriteFile(output, []byte(code), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s wrote %s\n", StatusIcon(true), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default <template>.py)")
	return cmd
}
