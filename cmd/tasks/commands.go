package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"tasktracker/api"
	"tasktracker/domain"
)

func newAddCommand(a *app) *cobra.Command {
	var notes, due, priority string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.TaskInput{
				Title:    strings.Join(args, " "),
				Notes:    notes,
				Priority: domain.Priority(priority),
			}
			if due != "" {
				d, err := domain.ParseDate(due)
				if err != nil {
					return err
				}
				in.Due = &d
			}
			t, err := a.store.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			if err := a.persisted(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", shortID(t.ID), t.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Free-form notes")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(domain.PriorityMedium), "Priority: high, medium or low")
	return cmd
}

func newEditCommand(a *app) *cobra.Command {
	var title, notes, due, priority string
	var clearDue bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title, notes, due date or priority of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}

			var patch domain.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}
			if flags.Changed("due") {
				d, err := domain.ParseDate(due)
				if err != nil {
					return err
				}
				patch.Due = &d
			}
			patch.ClearDue = clearDue
			if flags.Changed("priority") {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				patch.Priority = &p
			}
			if patch.Empty() {
				return errors.New("nothing to change")
			}

			t, ok, err := a.store.Update(cmd.Context(), id, patch)
			if !ok {
				return fmt.Errorf("%w: %s", errTaskNotFound, args[0])
			}
			if err != nil {
				return err
			}
			if err := a.persisted(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s %s\n", shortID(t.ID), t.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "New notes")
	cmd.Flags().StringVar(&due, "due", "", "New due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority")
	return cmd
}

func newToggleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task completed or pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			t, ok := a.store.ToggleCompleted(cmd.Context(), id)
			if !ok {
				return fmt.Errorf("%w: %s", errTaskNotFound, args[0])
			}
			if err := a.persisted(); err != nil {
				return err
			}
			state := "pending"
			if t.Completed {
				state = "completed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", shortID(t.ID), t.Title, state)
			return nil
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			t, _ := a.store.Get(id)
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete %q", t.Title))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "kept")
					return nil
				}
			}
			if !a.store.Remove(cmd.Context(), id) {
				return fmt.Errorf("%w: %s", errTaskNotFound, args[0])
			}
			if err := a.persisted(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s\n", shortID(t.ID), t.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var filter, query, sortBy string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			s, err := domain.ParseSortBy(sortBy)
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), a.store.View(f, query, s))
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(domain.FilterAll), "all, pending or completed")
	cmd.Flags().StringVarP(&query, "search", "q", "", "Case-insensitive search in title and notes")
	cmd.Flags().StringVarP(&sortBy, "sort", "s", string(domain.SortCreated), "created, due or priority")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts and progress",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			renderStats(cmd.OutOrStdout(), a.store.Stats())
		},
	}
}

func newServeCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task list over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.ListenAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{"*"},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
			}))
			e.Use(api.GzipRequestMiddleware())
			api.Register(e, a.store, a.broker, a.logger)

			errCh := make(chan error, 1)
			go func() {
				a.logger.WithField("addr", listen).Info("serving tasks api")
				errCh <- e.Start(listen)
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Listen address")
	return cmd
}
