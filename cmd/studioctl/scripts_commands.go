package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/library"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

func newScriptsCommand(ctx *commandContext) *cobra.Command {
	scriptsCmd := &cobra.Command{
		Use:     "scripts",
		Aliases: []string{"script"},
		Short:   "List, inspect, delete and render saved scripts",
	}

	scriptsCmd.AddCommand(newScriptsListCommand(ctx))
	scriptsCmd.AddCommand(newScriptsShowCommand(ctx))
	scriptsCmd.AddCommand(newScriptsDeleteCommand(ctx))
	scriptsCmd.AddCommand(newScriptsRenderCommand(ctx))

	return scriptsCmd
}

func newScriptsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := ctx.scriptStore().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list scripts: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No saved scripts")
				return nil
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				generated := "no"
				if f.IsGenerated {
					generated = "yes"
				}
				rows = append(rows, []string{f.Filename, f.Title, generated, f.UpdatedAt})
			}
			fmt.Fprint(out, renderTable([]string{"File", "Title", "Rendered", "Updated"}, rows, nil))
			return nil
		},
	}
}

func newScriptsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Show the sections and segments of a saved script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := ctx.scriptStore().Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			printScript(cmd.OutOrStdout(), sc)
			return nil
		},
	}
}

func printScript(out io.Writer, sc *script.Script) {
	fmt.Fprintf(out, "Title: %s\n", sc.Title)
	if sc.EstimatedDuration != "" {
		fmt.Fprintf(out, "Duration: %s\n", sc.EstimatedDuration)
	}
	fmt.Fprintf(out, "Segments: %d\n", sc.Count())

	rows := make([][]string, 0, sc.Count())
	for i, sec := range sc.Sections {
		for j, seg := range sec.Segments {
			rows = append(rows, []string{
				strconv.Itoa(i),
				strconv.Itoa(j),
				sec.Name,
				string(seg.Speaker),
				string(seg.Expression),
				seg.Text,
			})
		}
	}
	fmt.Fprint(out, renderTable(
		[]string{"Sec", "Seg", "Section", "Speaker", "Expression", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight},
	))
}

func newScriptsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file>",
		Short: "Delete a saved script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.scriptStore().Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newScriptsRenderCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a saved script and wait for the video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}

			store := ctx.scriptStore()
			jobs := ctx.jobs()
			loop := poll.New(jobs, ctx.cfg.Poll.Interval(), ctx.log)
			lib := library.New(store, jobs, loop, library.DirectMarker{Store: store}, ctx.log)
			defer lib.Close()

			if err := lib.Select(runCtx, args[0]); err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			if err := lib.Generate(runCtx); err != nil {
				return fmt.Errorf("start render: %w", err)
			}
			return watchRender(runCtx, cmd.OutOrStdout(), lib, ctx.cfg.Poll.Interval())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	return cmd
}

// watchRender prints progress until the render finishes.
func watchRender(ctx context.Context, out io.Writer, lib *library.Library, interval time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- lib.Wait(ctx) }()

	st := lib.State()
	fmt.Fprintf(out, "Task %s: %s\n", st.TaskID, st.StatusMessage)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	report := func() {
		st := lib.State()
		line := fmt.Sprintf("[%3d%%] %s %s", st.Percent, st.Status, st.StatusMessage)
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
	}

	for {
		select {
		case err := <-done:
			report()
			if err != nil {
				return err
			}
			st := lib.State()
			switch st.Status {
			case library.StatusCompleted:
				fmt.Fprintf(out, "Video: %s\n", st.VideoPath)
				return nil
			case library.StatusFailed:
				return errors.New(st.Error)
			}
			return fmt.Errorf("render stopped with status %s", st.Status)
		case <-ticker.C:
			report()
		}
	}
}
