package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

func boardsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List the boards of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			boards, err := a.registry.ListBoards(cmd.Context(), owner)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCREATED")
			for _, b := range boards {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Title, b.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("owner", "o", "", "Owner user id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func createBoardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-board [title]",
		Short: "Create a board, optionally with the default columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			description, _ := cmd.Flags().GetString("description")
			withDefaults, _ := cmd.Flags().GetBool("defaults")
			b, cols, err := a.registry.CreateBoard(cmd.Context(), domain.Board{
				OwnerID:     owner,
				Title:       args[0],
				Description: description,
			}, withDefaults)
			if err != nil && b.ID == "" {
				return err
			}
			if err != nil {
				a.logger.WithError(err).Warn("board created without all default columns")
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"board": b, "columns": cols})
		},
	}
	cmd.Flags().StringP("owner", "o", "", "Owner user id")
	cmd.Flags().StringP("description", "d", "", "Board description")
	cmd.Flags().Bool("defaults", true, "Create the default columns")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [board-id]",
		Short: "Print a board snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), eng.Snapshot())
			}
			snap := eng.Snapshot()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\n", snap.Board.ID, snap.Board.Title)
			for _, col := range snap.Columns {
				fmt.Fprintf(w, "\n[%d] %s (%s)\t%d tasks\t%s\n", col.Order, col.Title, col.Status, eng.TaskCountByStatus(col.Status), col.ID)
				for _, t := range snap.Tasks {
					if t.Status != col.Status {
						continue
					}
					fmt.Fprintf(w, "  - %s\t%s\t%s\n", t.Title, t.Priority, t.ID)
					for _, st := range t.Subtasks {
						mark := " "
						if st.Completed {
							mark = "x"
						}
						fmt.Fprintf(w, "      [%s] %s\t\t%s\n", mark, st.Title, st.ID)
					}
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func addTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-task [board-id] [title]",
		Short: "Create a task in a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			status, _ := cmd.Flags().GetString("status")
			description, _ := cmd.Flags().GetString("description")
			priority, _ := cmd.Flags().GetString("priority")
			if status == "" {
				cols := eng.Columns()
				if len(cols) == 0 {
					return errors.New("board has no columns")
				}
				status = cols[0].Status
			}
			m, err := eng.CreateTask(domain.Task{
				Title:       args[1],
				Description: description,
				Status:      status,
				Priority:    domain.Priority(priority),
			})
			if err != nil {
				return err
			}
			if err := board.WaitAll(ctx, m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ServerID())
			return nil
		},
	}
	cmd.Flags().StringP("status", "s", "", "Column status (defaults to the first column)")
	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("priority", "p", "", "Priority (low, medium, high)")
	return cmd
}

// sourceOf locates a task in its column the way a drag would report it.
func sourceOf(eng *board.Engine, taskID string) (domain.DropLocation, error) {
	t, ok := eng.Task(taskID)
	if !ok {
		return domain.DropLocation{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	idx := 0
	for _, other := range eng.Tasks() {
		if other.Status != t.Status {
			continue
		}
		if other.ID == t.ID {
			break
		}
		idx++
	}
	return domain.DropLocation{Status: t.Status, Index: idx}, nil
}

func moveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move [board-id] [task-id] [status]",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			src, err := sourceOf(eng, args[1])
			if err != nil {
				return err
			}
			index, _ := cmd.Flags().GetInt("index")
			m, err := eng.MoveTask(board.Drop{
				TaskID:      args[1],
				Source:      src,
				Destination: &domain.DropLocation{Status: args[2], Index: index},
			})
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to move")
				return nil
			}
			return board.WaitAll(ctx, m)
		},
	}
	cmd.Flags().IntP("index", "i", 0, "Position in the destination column")
	return cmd
}

func addColumnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-column [board-id] [title] [status]",
		Short: "Append a column to a board",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			color, _ := cmd.Flags().GetString("color")
			m, err := eng.CreateColumn(domain.Column{Title: args[1], Status: args[2], Color: color})
			if err != nil {
				return err
			}
			if err := board.WaitAll(ctx, m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ServerID())
			return nil
		},
	}
	cmd.Flags().StringP("color", "c", "", "Column color")
	return cmd
}

func deleteColumnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-column [board-id] [column-id]",
		Short: "Delete a column, moving its tasks to a fallback column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			fallback, _ := cmd.Flags().GetString("fallback")
			ms, err := eng.DeleteColumn(args[1], fallback)
			if err != nil {
				return err
			}
			if err := board.WaitAll(ctx, ms...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted column %s (%d mutations)\n", args[1], len(ms))
			return nil
		},
	}
	cmd.Flags().StringP("fallback", "f", "", "Column receiving the tasks (defaults to the first remaining column)")
	return cmd
}

func moveColumnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move-column [board-id] [from] [to]",
		Short: "Reorder columns by position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid from position: %w", err)
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid to position: %w", err)
			}
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			ms, err := eng.MoveColumn(from, to)
			if err != nil {
				return err
			}
			return board.WaitAll(ctx, ms...)
		},
	}
}

func subtaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Manage the checklist of a task",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [board-id] [task-id] [title]",
		Short: "Add a subtask",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			m, err := eng.CreateSubtask(args[1], args[2])
			if err != nil {
				return err
			}
			if err := board.WaitAll(ctx, m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ServerID())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle [board-id] [subtask-id]",
		Short: "Flip the completion of a subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, ctx, cancel, err := a.engine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()
			m, err := eng.ToggleSubtask(args[1])
			if err != nil {
				return err
			}
			return board.WaitAll(ctx, m)
		},
	})
	return cmd
}
