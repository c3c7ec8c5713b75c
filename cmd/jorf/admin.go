package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jorfline/internal/app"
	"jorfline/internal/directory"
	"jorfline/internal/domain"
	"jorfline/internal/repo"
)

func typeCmd() *cobra.Command {
	t := &cobra.Command{Use: "type", Short: "Manage request types"}
	t.AddCommand(typeListCmd())
	t.AddCommand(typeAddCmd())
	t.AddCommand(typeSetActiveCmd("enable", true))
	t.AddCommand(typeSetActiveCmd("disable", false))
	return t
}

func typeListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List request types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				types, err := ws.Engine.RequestTypes(ctx, !all)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(types)
				}
				tw := newTable("Name", "Active", "Created By", "Updated")
				for _, rt := range types {
					tw.AppendRow([]any{rt.Name, rt.Active, rt.CreatedBy, rt.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive types")
	return cmd
}

func typeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a request type (coordinators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				rt, err := ws.Engine.AddRequestType(ctx, s, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rt)
				}
				fmt.Println("added", rt.Name)
				return nil
			})
		},
	}
}

func typeSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a request type (coordinators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				rt, err := ws.Engine.SetRequestTypeActive(ctx, s, args[0], active)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rt)
				}
				fmt.Printf("%s active=%t\n", rt.Name, rt.Active)
				return nil
			})
		},
	}
}

func requestorCmd() *cobra.Command {
	r := &cobra.Command{Use: "requestor", Short: "Manage the requestor allow-list"}
	r.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allow-listed requestors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				items, err := ws.Engine.Requestors(ctx, s)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Employee", "Added By", "Added At")
				for _, it := range items {
					tw.AppendRow([]any{it.EmployeeID, it.AddedBy, it.AddedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	r.AddCommand(&cobra.Command{
		Use:   "add <employee-id>",
		Short: "Grant the requestor role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				entry, err := ws.Engine.AddRequestor(ctx, s, args[0])
				if err != nil {
					return err
				}
				fmt.Println("allow-listed", entry.EmployeeID)
				return nil
			})
		},
	})
	r.AddCommand(&cobra.Command{
		Use:   "remove <employee-id>",
		Short: "Revoke an allow-list entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				return ws.Engine.RemoveRequestor(ctx, s, args[0])
			})
		},
	})
	return r
}

func directoryCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "directory",
		Short: "Employee masterlist",
		Long:  "The directory is a local copy of the HR masterlist. Import it from YAML; sessions, approvers and handlers resolve against it.",
	}
	d.AddCommand(directoryImportCmd())
	d.AddCommand(directoryListCmd())
	return d
}

func directoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <masterlist.yml>",
		Short: "Upsert employees from a masterlist file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emps, err := directory.LoadMasterlist(args[0])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := directory.Import(ctx, ws.Engine.Repo, emps)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"imported": n})
				}
				fmt.Printf("imported %d employees\n", n)
				return nil
			})
		},
	}
}

func directoryListCmd() *cobra.Command {
	var f repo.EmployeeFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				emps, err := ws.Engine.Repo.ListEmployees(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(emps)
				}
				tw := newTable("ID", "Name", "Department", "Job Title", "Position", "Approvers", "Active")
				for _, e := range emps {
					approvers := strings.Trim(strings.Join([]string{e.Approver2, e.Approver3}, ", "), ", ")
					tw.AppendRow([]any{e.ID, e.Name, e.Department, e.JobTitle, e.Position, approvers, e.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.TitlePrefix, "title", "", "job title prefix")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "only active employees")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the actor"}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				keys, err := ws.Engine.Repo.ListAPIKeys(ctx, s.Actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, key := range keys {
					tw.AppendRow([]any{key.ID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke one of the actor's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				keys, err := ws.Engine.Repo.ListAPIKeys(ctx, s.Actor.ID)
				if err != nil {
					return err
				}
				for _, key := range keys {
					if key.ID == args[0] {
						return ws.Engine.Repo.DeleteAPIKey(ctx, key.ID)
					}
				}
				return fmt.Errorf("api key %s: %w", args[0], repo.ErrNotFound)
			})
		},
	})
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				secret, err := repo.NewAPIKeySecret()
				if err != nil {
					return err
				}
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   s.Actor.ID,
					Name:      strings.TrimSpace(name),
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := ws.Engine.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}
