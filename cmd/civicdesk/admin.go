package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"civicdesk/internal/app"
	"civicdesk/internal/config"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/repo"
)

func staffCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff profiles",
	}
	s.AddCommand(staffAddCmd())
	s.AddCommand(staffListCmd())
	return s
}

func staffAddCmd() *cobra.Command {
	var in engine.StaffInput
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a staff profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = domain.Role(role)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateStaff(ctx, cliActor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.UserID, "user", "", "user id the profile belongs to")
	cmd.Flags().StringVar(&role, "role", "", "agent|officer|task_force|admin")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().BoolVar(&in.CanAssess, "can-assess", false, "task force member may submit assessments")
	cmd.Flags().BoolVar(&in.CanResolve, "can-resolve", false, "task force member may submit resolutions")
	return cmd
}

func staffListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListStaff(ctx, cliActor(), domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Role", "Name", "Assess", "Resolve"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.UserID, p.Role, p.Name, p.CanAssess, p.CanResolve})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func taxonomyCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "taxonomy",
		Short: "Sectors and locations used to classify cases",
	}
	t.AddCommand(taxonomyImportCmd())
	t.AddCommand(taxonomyListCmd())
	return t
}

func taxonomyImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yml>",
		Short: "Add the taxonomy declared in a civicdesk.yml style file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				added, err := app.SeedTaxonomy(ctx, e.Repo, cfg.Taxonomy)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"added": added})
				}
				fmt.Printf("added %d taxonomy entries\n", added)
				return nil
			})
		},
	}
}

func taxonomyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sectors and locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sectors, subs, err := e.Repo.ListSectors(ctx)
				if err != nil {
					return err
				}
				locations, err := e.Repo.ListLocations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"sectors": sectors, "sub_sectors": subs, "locations": locations})
				}
				names := map[string]string{}
				for _, s := range sectors {
					names[s.ID] = s.Name
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Sectors")
				tw.AppendHeader(table.Row{"Sector", "Sub-sector"})
				for _, s := range sectors {
					tw.AppendRow(table.Row{s.Name, ""})
				}
				for _, sub := range subs {
					tw.AppendRow(table.Row{names[sub.SectorID], sub.Name})
				}
				tw.Render()

				for _, l := range locations {
					names[l.ID] = l.Name
				}
				lw := table.NewWriter()
				lw.SetOutputMirror(os.Stdout)
				lw.SetTitle("Locations")
				lw.AppendHeader(table.Row{"Kind", "Name", "Parent"})
				for _, l := range locations {
					lw.AppendRow(table.Row{l.Kind, l.Name, names[deref(l.ParentID)]})
				}
				lw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyRevokeCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the raw key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			raw := "cdk_" + hex.EncodeToString(buf)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				UserID:    userID,
				Name:      name,
				KeyHash:   repo.HashAPIKey(raw),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": key.UserID, "key": raw})
				}
				fmt.Printf("api key %s for %s: %s\n", key.ID, key.UserID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created", "Last used", "Revoked"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt, deref(k.LastUsedAt), deref(k.RevokedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user filter")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key; it stays listed with its revocation time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.RevokeAPIKey(ctx, args[0])
			})
		},
	}
}
