package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ekorz-boop/ragflow/internal/api"
	"github.com/Ekorz-boop/ragflow/internal/config"
	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/Ekorz-boop/ragflow/internal/mqtt"
	"github.com/Ekorz-boop/ragflow/internal/storage/postgres"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

const (
	backendProbeInterval = 15 * time.Second
	mqttStatusInterval   = 5 * time.Second
	alertCheckInterval   = 10 * time.Second
)

func serveCmd() *cobra.Command {
	var (
		port         int
		templatePath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser editor and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.UIPort()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, port, templatePath)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default network.ui_port)")
	cmd.Flags().StringVar(&templatePath, "template", "", "Template to load at startup")
	return cmd
}

// Serve runs the editor server until ctx is done.
func Serve(ctx context.Context, cfg *config.Config, port int, templatePath string) error {
	name := cfg.Editor.Name
	api.InitMetrics()
	api.SetEditorName(name)
	if err := api.InitAuth(); err != nil {
		return err
	}
	if err := api.InitTLS(); err != nil {
		return err
	}
	api.InitAlerts(cfg.Alerts.WebhookURL)

	client, err := newBackend(cfg)
	if err != nil {
		return err
	}
	s := newSession(cfg, client)
	defer s.Close()

	if cfg.Storage.Postgres {
		pg, err := postgres.New(name)
		if err != nil {
			slog.Warn("postgres unavailable, events are not recorded", "error", err)
			api.SetPostgresStatus(false, true)
		} else {
			events.SetPostgresClient(pg)
			defer pg.Close()
			api.SetPostgresStatus(true, true)
		}
	}

	loadOpts := template.LoadOptions{Validator: client, Introspector: client}
	if templatePath != "" {
		report, err := loadPipeline(ctx, s, templatePath, loadOpts)
		if err != nil {
			return err
		}
		slog.Info("template loaded", "path", templatePath, "blocks", report.Blocks, "connections", report.Connections)
	}

	api.SetWorkspace(&api.Workspace{Session: s, Introspector: client, Validator: client})
	defer api.SetWorkspace(nil)

	api.WatchRuns(ctx)
	api.StartBackendProbe(ctx, client, backendProbeInterval, false)
	if url := cfg.MQTTURL(); url != "" {
		m := startMQTT(ctx, url, cfg.MQTT.TopicPrefix, s, loadOpts)
		defer m.Disconnect()
	}
	api.StartAlertMonitor(ctx, alertCheckInterval)

	slog.Info("editor started", "editor", name, "session", s.ID(), "backend", client.BaseURL())
	events.Emit("info", "system.startup", "editor started", map[string]interface{}{
		"session_id": s.ID(),
		"port":       port,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- api.ListenAndServe(port) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("editor stopping", "editor", name)
		s.Engine().Wait()
		events.Emit("info", "system.shutdown", "editor stopped", map[string]interface{}{
			"session_id": s.ID(),
		})
		return nil
	}
}

// startMQTT connects the session to the broker. The connection keeps
// retrying in the background when the first attempt fails.
func startMQTT(ctx context.Context, url, prefix string, s *editor.Session, opts template.LoadOptions) *mqtt.Client {
	var bridge *mqtt.Bridge
	client := mqtt.NewClient(url, "ragflow-"+s.ID(), func() {
		api.SetMQTTStatus(true, true)
		bridge.Resubscribe()
	})
	bridge = mqtt.NewBridge(client, mqtt.NewTopics(prefix), s, opts)

	api.SetMQTTStatus(client.ConnectOrWarn(), true)
	if err := bridge.Start(ctx); err != nil {
		slog.Warn("mqtt: command subscription pending", "error", err)
	}

	go func() {
		ticker := time.NewTicker(mqttStatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				api.SetMQTTStatus(client.IsConnected(), true)
			}
		}
	}()
	return client
}
