package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"civicdesk/internal/app"
	"civicdesk/internal/config"
	"civicdesk/internal/db"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/migrate"
	"civicdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "civicdesk",
	Short: "Civicdesk case management",
	Long: `Civicdesk tracks municipal issue reports from submission to resolution.
- Workspace: a directory holding civicdesk.yml and the .civicdesk database.
- Cases: citizen, agent or officer reports that move submitted -> under_officer_review -> forwarded_to_admin -> assigned_to_task_force -> assessment -> resources_allocated -> resolution -> resolved.
- Staff: agent, officer, task_force and admin profiles that the workflow checks before acting.
- History: every status change is appended to the case's status ledger.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CIVICDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "user id the command acts as")
	rootCmd.PersistentFlags().String("actor-role", string(domain.RoleSuperAdmin), "role the command acts as")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(taxonomyCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, legacyHeaders bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			cfg, err := app.Bootstrap(cmd.Context(), conn, workspace)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "civicdesk: ", log.LstdFlags)
			e := app.NewEngine(conn, cfg, workspace, logger)
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: legacyHeaders,
				DevLogin:               devLogin,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CIVICDESK_JWT_SECRET is required for bearer auth")
			}
			if devLogin {
				logger.Printf("WARNING: dev login enabled; anyone can mint tokens at %s/auth/dev/login", basePath)
			}
			handler, err := server.New(server.Config{
				Engine:    e,
				BasePath:  basePath,
				Auth:      authCfg,
				UploadDir: app.UploadRoot(workspace, cfg),
			})
			if err != nil {
				return err
			}
			if server.StartWebhooks(cmd.Context(), e, server.DefaultWebhookInterval) {
				logger.Printf("delivering events to %d webhook(s)", len(cfg.Webhooks))
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Civicdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the unauthenticated token endpoint (local development only)")
	cmd.Flags().BoolVar(&legacyHeaders, "allow-legacy-headers", false, "accept X-Actor-Id/X-Actor-Role without credentials")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with CIVICDESK_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := server.SignToken(viper.GetString("jwt-secret"), userID, domain.ParseRole(role), ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RolePublic), "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed the configured taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			res, err := migrate.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if _, err := app.Bootstrap(cmd.Context(), conn, workspace); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			if len(res.Applied) == 0 {
				fmt.Printf("schema already at version %d (%s)\n", res.To, db.Path(workspace))
				return nil
			}
			fmt.Printf("schema %d -> %d: applied %s\n", res.From, res.To, strings.Join(res.Applied, ", "))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count cases per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountCasesByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Cases"})
				total := 0
				for _, s := range domain.Statuses {
					tw.AppendRow(table.Row{s, counts[string(s)]})
					total += counts[string(s)]
				}
				tw.AppendFooter(table.Row{"total", total})
				tw.Render()
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage civicdesk.yml",
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
		Short: "Write a default civicdesk.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
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
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
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
		Short: "Validate civicdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
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

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	cfg, err := app.Bootstrap(ctx, conn, workspace)
	if err != nil {
		return err
	}
	e := app.NewEngine(conn, cfg, workspace, log.New(os.Stderr, "civicdesk: ", 0))
	return fn(ctx, e)
}

func cliActor() engine.Actor {
	return engine.Actor{
		UserID: viper.GetString("actor-id"),
		Role:   domain.ParseRole(viper.GetString("actor-role")),
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
