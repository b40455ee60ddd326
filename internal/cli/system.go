package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ekorz-boop/ragflow/internal/storage/postgres"
)

func statusCmd() *cobra.Command {
	var install bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the backend environment (local model runtime)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			Banner(out, "status")
			fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Backend"), client.BaseURL())

			st, err := client.SystemStatus(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Reachable"), StatusIcon(false))
				return err
			}
			fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Reachable"), StatusIcon(true))
			if st.Platform != "" {
				fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Platform"), st.Platform)
			}
			fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Ollama"), StatusIcon(st.OllamaInstalled))
			fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-10s", "Running"), StatusIcon(st.OllamaRunning))

			keys := make([]string, 0, len(st.Extra))
			for k := range st.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s  %v\n", Subtle.Sprintf("%-10s", k), st.Extra[k])
			}

			if install && !st.OllamaInstalled {
				fmt.Fprintln(out)
				msg, err := client.InstallOllama(cmd.Context())
				if err != nil {
					return fmt.Errorf("install failed: %w", err)
				}
				fmt.Fprintf(out, "  %s %s\n", StatusIcon(true), msg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "Install the local model runtime when missing")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newBackend(cfg)
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			Banner(out, "models")
			if len(models) == 0 {
				fmt.Fprintln(out, Subtle.Sprint("  no models installed"))
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				size := ""
				if m.Size > 0 {
					size = fmt.Sprintf("%.1f GB", float64(m.Size)/1e9)
				}
				rows = append(rows, []string{m.Name, size})
			}
			Table(out, []string{"MODEL", "SIZE"}, rows)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		session string
		limit   int
		runs    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded editor events from Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pg, err := postgres.New(cfg.Editor.Name)
			if err != nil {
				return err
			}
			defer pg.Close()

			if runs {
				return printRuns(cmd, pg, limit)
			}

			rows, err := pg.Query(session, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			Banner(out, "history")
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				msg := ""
				if r.Message != nil {
					msg = summarize(*r.Message, 60)
				}
				sid := ""
				if r.SessionID != nil {
					sid = *r.SessionID
				}
				table = append(table, []string{
					strconv.FormatInt(r.EventID, 10),
					r.Timestamp.Format("2006-01-02 15:04:05"),
					r.Level,
					r.Event,
					sid,
					msg,
				})
			}
			Table(out, []string{"ID", "TIME", "LEVEL", "EVENT", "SESSION", "MESSAGE"}, table)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Only events of this session")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&runs, "runs", false, "Summarize pipeline runs per session instead")
	return cmd
}

func printRuns(cmd *cobra.Command, pg *postgres.Client, limit int) error {
	runs, err := pg.Runs(limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	Banner(out, "runs")
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.SessionID,
			strconv.Itoa(r.Completed),
			strconv.Itoa(r.Failed),
			r.LastRun.Format("2006-01-02 15:04:05"),
		})
	}
	Table(out, []string{"SESSION", "OK", "FAILED", "LAST RUN"}, rows)
	return nil
}
