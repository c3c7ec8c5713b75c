package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jorfline/internal/app"
	"jorfline/internal/domain"
	"jorfline/internal/engine"
	"jorfline/internal/notify"
)

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Submit and act on facilities requests",
	}
	req.AddCommand(requestSubmitCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestActionsCmd())
	req.AddCommand(requestActCmd())
	req.AddCommand(requestLogsCmd())
	req.AddCommand(requestCountsCmd())
	return req
}

// cliDeliverer pushes through the configured webhook only; the CLI has no
// websocket subscribers.
func cliDeliverer(ws *app.Workspace) notify.Deliverer {
	return ws.Deliverers(nil)
}

func requestSubmitCmd() *cobra.Command {
	var in engine.SubmitInput
	var files []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				for _, f := range files {
					in.Attachments = append(in.Attachments, engine.AttachmentInput{Path: f})
				}
				ws.Engine.Deliverer = cliDeliverer(ws)
				res, err := ws.Engine.Submit(ctx, s, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("submitted %s (%s); %d notified\n", res.Request.JorfID, res.Request.Status, res.Notified.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.RequestType, "type", "", "request type")
	cmd.Flags().StringVar(&in.Details, "details", "", "what needs to be done")
	cmd.Flags().StringVar(&in.Remarks, "remarks", "", "optional remarks")
	cmd.Flags().StringArrayVar(&files, "attach", nil, "stored attachment path (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("details")
	return cmd
}

func requestListCmd() *cobra.Command {
	var opts engine.ListOptions
	var order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				opts.Desc = strings.EqualFold(order, "desc")
				res, err := ws.Engine.List(ctx, s, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable("JORF ID", "Type", "Requestor", "Status", "Created", "Actions")
				for _, v := range res.Items {
					status := v.StatusLabel
					if v.Critical {
						status += " (!)"
					}
					tw.AppendRow([]any{v.JorfID, v.RequestType, v.RequestorName, status, v.CreatedAt, joinActions(v.Actions)})
				}
				tw.AppendFooter([]any{"", "", "", "", "Total", res.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status label or code")
	cmd.Flags().StringVar(&opts.RequestType, "type", "", "request type filter")
	cmd.Flags().StringVar(&opts.Search, "search", "", "free-text search")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "sort column")
	cmd.Flags().StringVar(&order, "order", "desc", "asc or desc")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <jorf-id>",
		Short: "Show one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				v, err := ws.Engine.Get(ctx, s, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				tw := newTable("Field", "Value")
				tw.AppendRow([]any{"JORF ID", v.JorfID})
				tw.AppendRow([]any{"Type", v.RequestType})
				tw.AppendRow([]any{"Requestor", fmt.Sprintf("%s (%s)", v.RequestorName, v.RequestorID)})
				tw.AppendRow([]any{"Department", v.Department})
				tw.AppendRow([]any{"Status", v.StatusLabel})
				tw.AppendRow([]any{"Details", v.Details})
				if v.Remarks != "" {
					tw.AppendRow([]any{"Remarks", v.Remarks})
				}
				if v.CostAmount != nil {
					tw.AppendRow([]any{"Cost", v.CostAmount.StringFixed(2)})
				}
				if len(v.HandledBy) > 0 {
					tw.AppendRow([]any{"Handled by", strings.Join(v.HandledBy, ", ")})
				}
				if v.Rating != nil {
					tw.AppendRow([]any{"Rating", *v.Rating})
				}
				tw.AppendRow([]any{"Actions", joinActions(v.Actions)})
				tw.Render()
				return nil
			})
		},
	}
}

func requestActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <jorf-id>",
		Short: "List the actions the actor may take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				actions, err := ws.Engine.AvailableActions(ctx, s, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				fmt.Println(joinActions(actions))
				return nil
			})
		},
	}
}

func requestActCmd() *cobra.Command {
	var remarks, cost string
	var handlers []string
	var rating int
	cmd := &cobra.Command{
		Use:   "act <jorf-id> <action>",
		Short: "Apply an action (CANCEL, APPROVE, DISAPPROVE, ONGOING, DONE, ACKNOWLEDGE)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.ActInput{Action: args[1], Remarks: remarks, HandledBy: handlers}
			if cost != "" {
				d, err := decimal.NewFromString(cost)
				if err != nil {
					return fmt.Errorf("--cost: %w", err)
				}
				in.CostAmount = &d
			}
			if cmd.Flags().Changed("rating") {
				in.Rating = &rating
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				ws.Engine.Deliverer = cliDeliverer(ws)
				res, err := ws.Engine.Act(ctx, s, args[0], in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s is now %s; %d notified\n", res.Request.JorfID, res.Request.Status, res.Notified.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks for the audit trail")
	cmd.Flags().StringVar(&cost, "cost", "", "cost amount (ONGOING, DONE)")
	cmd.Flags().StringArrayVar(&handlers, "handler", nil, "facilities employee id (repeatable)")
	cmd.Flags().IntVar(&rating, "rating", 0, "service rating 1-5 (ACKNOWLEDGE)")
	return cmd
}

func requestLogsCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "logs <jorf-id>",
		Short: "Show the audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				res, err := ws.Engine.Logs(ctx, s, args[0], page)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable("When", "Action", "By", "Remarks")
				for _, entry := range res.Items {
					tw.AppendRow([]any{entry.CreatedAt, entry.ActionType, entry.ActorName, entry.Remarks})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func requestCountsCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Per-status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				counts, err := ws.Engine.StatusCounts(ctx, s, search)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable("Status", "Count")
				for _, c := range counts {
					tw.AppendRow([]any{c.Label, c.Count})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "free-text search")
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{
		Use:     "notification",
		Aliases: []string{"inbox"},
		Short:   "Read the actor's notifications",
	}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var opts engine.InboxOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				box, err := ws.Engine.Notifications(ctx, s, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(box)
				}
				tw := newTable("ID", "JORF ID", "Category", "Action", "Message", "Read")
				for _, item := range box.Items {
					tw.AppendRow([]any{item.ID, item.JorfID, item.Category, item.ActionRequired, item.Message, item.ReadAt != nil})
				}
				tw.AppendFooter([]any{"", "", "", "", "Unread", box.Unread})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.UnreadOnly, "unread", false, "only unread")
	cmd.Flags().StringVar(&opts.JorfID, "jorf-id", "", "only this request")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum items")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark one (or --all) notifications read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass a notification id or --all")
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s domain.Session) error {
				if all {
					n, err := ws.Engine.MarkAllNotificationsRead(ctx, s)
					if err != nil {
						return err
					}
					fmt.Printf("marked %d read\n", n)
					return nil
				}
				return ws.Engine.MarkNotificationRead(ctx, s, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "mark everything read")
	return cmd
}

func joinActions(actions []domain.Action) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ", ")
}
