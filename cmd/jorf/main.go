package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jorfline/internal/app"
	"jorfline/internal/config"
	"jorfline/internal/db"
	"jorfline/internal/domain"
	"jorfline/internal/logging"
	"jorfline/internal/notify"
	"jorfline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "jorf",
	Short: "JORF facilities request workflow",
	Long: `jorf runs the facilities job order request form (JORF) workflow.
- Requestors submit requests; their department heads approve or disapprove.
- Facilities coordinators assign approved work and close it once done.
- The requestor acknowledges finished work with a 1-5 rating.
- Every transition is audited and routed to whoever must act next.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Config{Level: viper.GetString("log-level"), Format: "console", Output: os.Stderr})
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// A .env next to the workspace seeds secrets such as JORF_JWT_SECRET.
	workspace, _ := rootCmd.PersistentFlags().GetString("workspace")
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	viper.SetEnvPrefix("JORF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("actor-id", "a", "", "employee id to act as")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(typeCmd())
	rootCmd.AddCommand(requestorCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin, metrics bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := app.Open(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: legacyHeader,
				DevLogin:               devLogin,
			}
			if authCfg.JWTSecret == "" && !legacyHeader {
				return fmt.Errorf("JORF_JWT_SECRET is required unless --allow-legacy-actor-header is set")
			}
			if devLogin && authCfg.JWTSecret == "" {
				return fmt.Errorf("--dev-login needs JORF_JWT_SECRET to sign tokens")
			}

			hub := notify.NewHub()
			deliverer := ws.Deliverers(hub)
			ws.Engine.Deliverer = deliverer
			go ws.Retrier(deliverer).Run(ctx)
			server.StartAuditWebhooks(ctx, ws.Engine)

			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Hub:      hub,
				Metrics:  metrics,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log := logging.Component("serve")
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving")
			fmt.Printf("Serving JORF API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-legacy-actor-header", false, "trust X-Actor-Id without credentials (development only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login to mint tokens for any employee")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics at /metrics")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in jorf.yml at the workspace root: organization rules, request numbering, notification delivery and audit webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default jorf.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate jorf.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// withSession opens the workspace and resolves the --actor-id identity.
func withSession(ctx context.Context, fn func(context.Context, *app.Workspace, domain.Session) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		actorID := strings.TrimSpace(viper.GetString("actor-id"))
		if actorID == "" {
			return fmt.Errorf("--actor-id (or JORF_ACTOR_ID) is required")
		}
		s, err := ws.Engine.Session(ctx, actorID)
		if err != nil {
			return err
		}
		return fn(logging.WithContext(ctx, logging.WithActor(ctx, actorID)), ws, s)
	})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
