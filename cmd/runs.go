package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/indicators-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the task log written by run and aggregate",
}

// withRunLog opens the configured store, makes sure the log table exists and
// hands it to fn.
func withRunLog(ctx context.Context, fn func(store.Store) error) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	return fn(st)
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged tasks, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		script, _ := cmd.Flags().GetString("script")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withRunLog(cmd.Context(), func(st store.Store) error {
			runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
				Script: script,
				Status: store.RunStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return eris.Wrap(err, "runs list")
			}
			if asJSON {
				return writeIndented(os.Stdout, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(os.Stderr, "no logged tasks")
				return nil
			}
			formatRunsList(os.Stdout, runs)
			return nil
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one logged task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunLog(cmd.Context(), func(st store.Store) error {
			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return eris.Wrapf(err, "runs show %s", args[0])
			}
			return writeIndented(os.Stdout, run)
		})
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise task outcomes and durations per task",
	RunE: func(cmd *cobra.Command, _ []string) error {
		script, _ := cmd.Flags().GetString("script")
		window, _ := cmd.Flags().GetInt("window")

		return withRunLog(cmd.Context(), func(st store.Store) error {
			runs, err := st.ListRuns(cmd.Context(), store.RunFilter{Script: script, Limit: window})
			if err != nil {
				return eris.Wrap(err, "runs stats")
			}
			formatTaskStats(os.Stdout, summariseTasks(runs))
			return nil
		})
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "only tasks with this status (running, complete, failed)")
	runsListCmd.Flags().String("script", "", "only tasks logged by this script")
	runsListCmd.Flags().Int("limit", 50, "maximum tasks listed")
	runsListCmd.Flags().Bool("json", false, "print the tasks as JSON")

	runsStatsCmd.Flags().String("script", "", "only tasks logged by this script")
	runsStatsCmd.Flags().Int("window", 1000, "number of most recent tasks considered")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// taskStats summarises every logged execution of one task.
type taskStats struct {
	Task     string
	Runs     int
	Failed   int
	Running  int
	Total    time.Duration // completed executions only
	Longest  time.Duration
	LastSeen time.Time
}

// Mean is the average duration of completed executions.
func (s taskStats) Mean() time.Duration {
	done := s.Runs - s.Failed - s.Running
	if done <= 0 {
		return 0
	}
	return s.Total / time.Duration(done)
}

// summariseTasks groups runs by task, ordered by total time spent so the
// expensive stages come first.
func summariseTasks(runs []store.Run) []taskStats {
	byTask := make(map[string]*taskStats)
	for _, r := range runs {
		s, ok := byTask[r.Task]
		if !ok {
			s = &taskStats{Task: r.Task}
			byTask[r.Task] = s
		}
		s.Runs++
		if r.StartedAt.After(s.LastSeen) {
			s.LastSeen = r.StartedAt
		}
		switch r.Status {
		case store.RunStatusFailed:
			s.Failed++
		case store.RunStatusRunning:
			s.Running++
		default:
			s.Total += r.Duration
			s.Longest = max(s.Longest, r.Duration)
		}
	}

	out := make([]taskStats, 0, len(byTask))
	for _, s := range byTask {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b taskStats) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Task, b.Task)
	})
	return out
}

func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tSCRIPT\tTASK")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration.Round(time.Second),
			r.Script,
			ellipsis(r.Task, 40),
		)
	}
	_ = w.Flush()
}

func formatTaskStats(out io.Writer, stats []taskStats) {
	if len(stats) == 0 {
		_, _ = fmt.Fprintln(out, "no logged tasks")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tRUNS\tFAILED\tMEAN\tLONGEST\tLAST")
	var runs, failed int
	for _, s := range stats {
		runs += s.Runs
		failed += s.Failed
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			ellipsis(s.Task, 40),
			s.Runs,
			s.Failed,
			s.Mean().Round(time.Second),
			s.Longest.Round(time.Second),
			s.LastSeen.Format("2006-01-02 15:04"),
		)
	}
	_, _ = fmt.Fprintf(w, "total\t%d\t%d\t\t\t\n", runs, failed)
	_ = w.Flush()
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortID keeps the first UUID group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func ellipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
