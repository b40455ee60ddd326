// Package cli implements the ragflow command line: the headless pipeline
// commands, the backend introspection commands and the editor servers.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ekorz-boop/ragflow/internal/backend"
	"github.com/Ekorz-boop/ragflow/internal/config"
	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/template"
	"github.com/Ekorz-boop/ragflow/internal/version"
)

const defaultConfigPath = "ragflow.yaml"

var (
	configPath string
	backendURL string
)

// NewRootCmd builds the ragflow command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragflow",
		Short:         "ragflow: build and run RAG pipelines as block graphs",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("ragflow {{ .Version }}\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&backendURL, "backend", "", "Backend URL (overrides backend.url)")

	root.AddCommand(
		serveCmd(),
		editCmd(),
		validateCmd(),
		runCmd(),
		snapshotCmd(),
		exportCmd(),
		classesCmd(),
		classCmd(),
		customCmd(),
		statusCmd(),
		modelsCmd(),
		historyCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the command line and prints a failure to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, Bad.Sprint("ragflow: ")+err.Error())
	}
	return err
}

func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}

func newBackend(cfg *config.Config) (*backend.Client, error) {
	url := backendURL
	if url == "" {
		url = cfg.Backend.URL
	}
	token, err := config.ResolveSecret(config.EnvBackendToken)
	if err != nil {
		return nil, err
	}
	return backend.New(url, token, cfg.BackendTimeout()), nil
}

func newSession(cfg *config.Config, p editor.Processor) *editor.Session {
	return editor.NewSession(editor.Options{
		GridSize:         cfg.Editor.GridSize,
		ZoomMin:          cfg.Editor.ZoomMin,
		ZoomMax:          cfg.Editor.ZoomMax,
		ZoomStep:         cfg.Editor.ZoomStep,
		PropagationDelay: cfg.PropagationDelay(),
		Debug:            cfg.Editor.DebugMode,
		Processor:        p,
	})
}

// loadPipeline reads a template file into s.
func loadPipeline(ctx context.Context, s *editor.Session, path string, opts template.LoadOptions) (*template.LoadReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return template.Load(ctx, s, data, opts)
}

func savePipeline(s *editor.Session, path, name string) error {
	data, err := template.Marshal(template.Save(s, name))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ragflow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ragflow "+version.Version)
		},
	}
}
