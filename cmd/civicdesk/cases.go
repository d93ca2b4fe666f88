package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Inspect and move cases",
		Long:  "Case commands act as --actor-id/--actor-role and go through the same role checks as the HTTP API.",
	}
	c.AddCommand(caseSubmitCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseHistoryCmd())
	c.AddCommand(caseTransitionCmd())
	c.AddCommand(caseForwardCmd())
	c.AddCommand(caseAssignCmd())
	return c
}

func caseSubmitCmd() *cobra.Command {
	var opts engine.SubmitOptions
	var channel, priority string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Channel = domain.Channel(channel)
			opts.Priority = domain.Priority(priority)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.SubmitCase(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "short title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what is wrong")
	cmd.Flags().StringVar(&opts.LocationText, "location", "", "free-text location")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent (default from config)")
	cmd.Flags().StringVar(&channel, "channel", string(domain.ChannelPublic), "public|agent|officer")
	cmd.Flags().StringVar(&opts.ReporterName, "reporter-name", "", "reporter name for agent-logged cases")
	cmd.Flags().StringVar(&opts.ReporterPhone, "reporter-phone", "", "reporter phone for agent-logged cases")
	cmd.Flags().StringVar(&opts.Sector, "sector", "", "sector name")
	cmd.Flags().StringVar(&opts.SubSector, "sub-sector", "", "sub-sector name")
	cmd.Flags().StringVar(&opts.Community, "community", "", "community name")
	cmd.Flags().StringVar(&opts.SmallerCommunity, "smaller-community", "", "smaller community name")
	cmd.Flags().StringVar(&opts.Suburb, "suburb", "", "suburb name")
	return cmd
}

func caseListCmd() *cobra.Command {
	var statuses []string
	var priority, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases in the actor's default view",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ListOptions{Priority: domain.Priority(priority), Limit: limit, Cursor: cursor}
			for _, s := range statuses {
				opts.Statuses = append(opts.Statuses, domain.Status(strings.TrimSpace(s)))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cases, next, err := e.ListCases(ctx, cliActor(), opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": cases, "next_cursor": next})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Title", "Status", "Priority", "Task Force", "Created"})
				for _, c := range cases {
					tw.AppendRow(table.Row{c.Code, c.Title, c.Status, c.Priority, deref(c.AssignedTaskForce), c.CreatedAt})
				}
				tw.Render()
				if next != "" {
					fmt.Printf("next page: --cursor '%s'\n", next)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func caseShowCmd() *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "show <id-or-code>",
		Short: "Show a case and its reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetCase(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				if !withEvents {
					return printJSONOrTable(d)
				}
				evts, err := e.Repo.EventsForEntity(ctx, "case", d.Case.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"case": d, "events": evts})
			})
		},
	}
	cmd.Flags().BoolVar(&withEvents, "events", false, "include the audit events for the case")
	return cmd
}

func caseHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id-or-code>",
		Short: "Show the status ledger of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, cliActor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "When", "Actor", "From", "To", "Note"})
				for _, h := range items {
					from := ""
					if h.OldStatus != nil {
						from = string(*h.OldStatus)
					}
					tw.AppendRow(table.Row{h.ID, h.CreatedAt, h.ActorID, from, h.NewStatus, h.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func caseTransitionCmd() *cobra.Command {
	var opts engine.TransitionOptions
	var status string
	cmd := &cobra.Command{
		Use:   "transition <id-or-code>",
		Short: "Move a case to another status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = domain.Status(status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.TransitionStatus(ctx, cliActor(), args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d.Case)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	cmd.Flags().StringVar(&opts.Note, "note", "", "history note")
	cmd.Flags().StringVar(&opts.ResolutionNotes, "resolution-notes", "", "notes recorded when resolving")
	return cmd
}

func caseForwardCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "forward <id-or-code>",
		Short: "Forward a case to the admins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ForwardToAdmin(ctx, cliActor(), args[0], note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d.Case)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "history note")
	return cmd
}

func caseAssignCmd() *cobra.Command {
	var taskForceID, officerID, agentID, note string
	cmd := &cobra.Command{
		Use:   "assign <id-or-code>",
		Short: "Assign a task force member, officer or agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskForceID == "" && officerID == "" && agentID == "" {
				return fmt.Errorf("one of --task-force, --officer or --agent is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var d engine.CaseDetail
				var err error
				if officerID != "" || agentID != "" {
					d, err = e.AssignStaff(ctx, cliActor(), args[0], engine.AssignStaffOptions{OfficerID: officerID, AgentID: agentID})
					if err != nil {
						return err
					}
				}
				if taskForceID != "" {
					d, err = e.AssignToTaskForce(ctx, cliActor(), args[0], taskForceID, note)
					if err != nil {
						return err
					}
				}
				return printJSONOrTable(d.Case)
			})
		},
	}
	cmd.Flags().StringVar(&taskForceID, "task-force", "", "task force profile id")
	cmd.Flags().StringVar(&officerID, "officer", "", "officer profile id")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent profile id")
	cmd.Flags().StringVar(&note, "note", "", "history note for task force assignment")
	return cmd
}
