package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ekorz-boop/ragflow/internal/synth"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

func classesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes [library [module]]",
		Short: "Browse the libraries, modules and classes the backend can introspect",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			wiz := synth.NewWizard(client)

			var (
				items []string
				title string
			)
			switch len(args) {
			case 0:
				title = "libraries"
				items, err = wiz.Libraries(cmd.Context())
			case 1:
				title = args[0] + " modules"
				items, err = wiz.Modules(cmd.Context(), args[0])
			default:
				title = args[0] + "." + args[1] + " classes"
				items, err = wiz.Classes(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			Banner(out, title)
			if len(items) == 0 {
				fmt.Fprintln(out, Subtle.Sprint("  none"))
				return nil
			}
			for _, it := range items {
				fmt.Fprintf(out, "  %s\n", it)
			}
			return nil
		},
	}
}

func classCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "class <library> <module> <class>",
		Short: "Show what a custom block of a class would look like",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			wiz := synth.NewWizard(client)
			if err := wiz.SelectClass(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			Banner(out, args[2])
			field := func(name, value string) {
				fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", name), value)
			}
			field("Component", wiz.ComponentType())
			field("Category", string(wiz.Category()))
			field("Inputs", strings.Join(wiz.Inputs(), ", "))
			field("Outputs", strings.Join(wiz.Outputs(), ", "))
			field("Methods", strings.Join(wiz.AvailableMethods(), ", "))

			if rows := wiz.ParameterRows(); len(rows) > 0 {
				fmt.Fprintln(out)
				var table [][]string
				for _, r := range rows {
					table = append(table, []string{r.Method, r.Name, r.Type, fmt.Sprint(r.Default)})
				}
				Table(out, []string{"METHOD", "PARAM", "TYPE", "DEFAULT"}, table)
			}
			if doc := wiz.Doc(); doc != "" {
				fmt.Fprintf(out, "\n%s\n", doc)
			}
			return nil
		},
	}
}

// parseParam splits method.name=value.
func parseParam(s string) (method, name, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", "", fmt.Errorf("parameter %q: expected method.name=value", s)
	}
	method, name, ok = strings.Cut(key, ".")
	if !ok || method == "" || name == "" {
		return "", "", "", fmt.Errorf("parameter %q: expected method.name=value", s)
	}
	return method, name, value, nil
}

func customCmd() *cobra.Command {
	var (
		file    string
		methods []string
		inputs  []string
		outputs []string
		params  []string
		x, y    float64
	)

	cmd := &cobra.Command{
		Use:   "custom <library> <module> <class>",
		Short: "Add a custom block of an introspected class to a saved pipeline",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			s := newSession(cfg, nil)
			defer s.Close()

			if _, err := os.Stat(file); err == nil {
				if _, err := loadPipeline(cmd.Context(), s, file, template.LoadOptions{Introspector: client}); err != nil {
					return err
				}
			}

			wiz := synth.NewWizard(client)
			if err := wiz.SelectClass(cmd.Context(), args[0], args[1], args[2]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s %v, using name-derived ports\n", Warn.Sprint("!"), err)
			}
			for _, m := range methods {
				if err := wiz.SelectMethod(m); err != nil {
					return err
				}
			}
			for _, in := range inputs {
				if slices.Contains(wiz.Inputs(), in) {
					continue
				}
				if err := wiz.AddInput(in); err != nil {
					return err
				}
			}
			for _, o := range outputs {
				if slices.Contains(wiz.Outputs(), o) {
					continue
				}
				if err := wiz.AddOutput(o); err != nil {
					return err
				}
			}
			for _, p := range params {
				method, name, value, err := parseParam(p)
				if err != nil {
					return err
				}
				if err := wiz.SetParameter(method, name, value); err != nil {
					return err
				}
			}

			b, err := wiz.Create(s, x, y)
			if err != nil {
				return err
			}
			if err := savePipeline(s, file, strings.TrimSuffix(filepath.Base(file), ".json")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s added %s (%s) to %s\n", StatusIcon(true), b.ID, args[2], file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.json", "Template file to add the block to")
	cmd.Flags().StringSliceVar(&methods, "method", nil, "Methods to enable besides the constructor")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Extra input ports")
	cmd.Flags().StringSliceVar(&outputs, "output", nil, "Extra output ports")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Parameter override, method.name=value")
	cmd.Flags().Float64Var(&x, "x", 0, "Canvas x position")
	cmd.Flags().Float64Var(&y, "y", 0, "Canvas y position")
	return cmd
}
