package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DeafMist/competitor-newsletter/internal/browse"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/share"
)

// app carries the dependencies every command works against.
type app struct {
	log         *slog.Logger
	feed        browse.Fetcher
	store       *curation.Store
	dispatcher  browse.Dispatcher // optional; the CLI only persists selections
	composer    share.Composer
	sender      share.Sender
	competitors []string
	minDisplay  time.Duration
}

var errNoCompetitors = errors.New("no competitors given; use --competitor or COMPETITORS")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "newsletterctl",
		Short:         "Curate competitor news into an emailed newsletter",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newBrowseCmd(a))
	root.AddCommand(newItemsCmd(a))
	root.AddCommand(newComposeCmd(a))
	root.AddCommand(newSendCmd(a))
	return root
}

func newBrowseCmd(a *app) *cobra.Command {
	var (
		competitors []string
		selectIDs   []string
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Show the latest news per competitor and category",
		Long: `Fetch the competitor feed and print one row per competitor and category.
Entries named with --select are added to the newsletter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interest := competitors
			if len(interest) == 0 {
				interest = a.competitors
			}
			if len(interest) == 0 {
				return errNoCompetitors
			}
			return a.browse(cmd.Context(), cmd.OutOrStdout(), interest, selectIDs)
		},
	}
	cmd.Flags().StringSliceVarP(&competitors, "competitor", "c", nil, "competitor to show (repeatable)")
	cmd.Flags().StringSliceVarP(&selectIDs, "select", "s", nil, "entry id to add to the newsletter (repeatable)")
	return cmd
}

func (a *app) browse(ctx context.Context, out io.Writer, interest, selectIDs []string) error {
	c := browse.NewController(a.feed, a.minDisplay, a.log)
	defer c.Close()

	fmt.Fprintln(out, "Loading competitor news...")
	view, err := c.Load(ctx, interest)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(selectIDs))
	for _, id := range selectIDs {
		wanted[id] = struct{}{}
	}
	sel := browse.NewSelection()

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Company", "Category", "ID", "Topic", "Date", "Source"})
	for _, company := range interest {
		entries := view.Lookup(company)
		for _, category := range models.Categories {
			e := entries[category]
			topic, date, source, _ := newsfeed.Display(e)
			t.AppendRow(table.Row{company, category, e.ID, topic, date, source})
			if _, ok := wanted[e.ID]; ok && !e.Empty() {
				sel.Toggle(company, category, e)
			}
		}
	}
	t.Render()

	if len(selectIDs) == 0 {
		return nil
	}
	if sel.Len() < len(wanted) {
		fmt.Fprintf(out, "%d of %d selected entries found\n", sel.Len(), len(wanted))
	}
	added, err := sel.Confirm(ctx, a.store, a.dispatcher)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %d item(s) to the newsletter\n", len(added))
	return nil
}

func newItemsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage the newsletter collection",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List curated items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.store.Load(cmd.Context())
			if err != nil {
				return err
			}
			renderItems(cmd.OutOrStdout(), items)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [id]",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.store.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d item(s) remain\n", len(items))
			return nil
		},
	})

	var content string
	edit := &cobra.Command{
		Use:   "edit [id]",
		Short: "Replace the content of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("content") {
				return errors.New("--content is required")
			}
			items, err := a.store.Edit(cmd.Context(), args[0], content)
			if err != nil {
				return err
			}
			for _, it := range items {
				if it.ID == args[0] {
					fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", it.ID)
					return nil
				}
			}
			return fmt.Errorf("no item with id %q", args[0])
		},
	}
	edit.Flags().StringVar(&content, "content", "", "new item content")
	cmd.AddCommand(edit)

	return cmd
}

func renderItems(out io.Writer, items []models.CurationItem) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Company", "Category", "Title", "Date"})
	for _, it := range items {
		t.AppendRow(table.Row{it.ID, it.Company, it.Category, it.Title, it.Date})
	}
	label := curation.BadgeLabel(len(items))
	if label == "" {
		label = "0"
	}
	t.AppendFooter(table.Row{"", "", "", "Items", label})
	t.Render()
}

func newComposeCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Render the newsletter to a PDF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.store.Load(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := a.composer.Compose(cmd.Context(), items)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, doc.PDF, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d page(s), %d item(s))\n", outPath, len(doc.Pages), len(items))
			for _, id := range doc.Truncated() {
				fmt.Fprintf(cmd.OutOrStdout(), "Truncated to fit one page: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "newsletter.pdf", "output file")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var to, message string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Compose the newsletter and email it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf := share.New(a.store, a.composer, a.sender, share.WithLogger(a.log))
			ctx := cmd.Context()
			if err := wf.Preview(ctx); err != nil {
				return err
			}
			if err := wf.Proceed(); err != nil {
				return err
			}
			err := wf.Submit(ctx, to, message)
			if status := wf.Snapshot().Status; status != "" {
				fmt.Fprintln(cmd.OutOrStdout(), status)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient email address")
	cmd.Flags().StringVarP(&message, "message", "m", "", "optional message for the email body")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
