package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/practice-hub/practice-hub/internal/application/command"
	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/achievement"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

type catalogRow struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Tier      string  `json:"tier"`
	Kind      string  `json:"kind"`
	Threshold float64 `json:"threshold"`
}

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the achievement rules built from the stored segments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			segments, err := env.stores.Exercises.ListSegments(ctx)
			if err != nil {
				return err
			}
			catalog, err := achievement.DefaultCatalog(segments)
			if err != nil {
				return err
			}

			rows := make([]catalogRow, 0, catalog.Len())
			for _, r := range catalog.Rules() {
				rows = append(rows, catalogRow{
					ID:        r.ID,
					Name:      r.Name,
					Category:  string(r.Category),
					Tier:      string(r.Tier),
					Kind:      r.Kind.String(),
					Threshold: r.Threshold,
				})
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tTIER\tKIND\tTHRESHOLD")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%g\n", r.ID, r.Name, r.Category, r.Tier, r.Kind, r.Threshold)
			}
			return tw.Flush()
		},
	}
}

type progressRow struct {
	RuleID     string     `json:"rule_id"`
	Value      float64    `json:"current_value"`
	Threshold  float64    `json:"threshold"`
	Percent    int        `json:"progress_percent"`
	Satisfied  bool       `json:"is_satisfied"`
	Unlocked   bool       `json:"is_unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every rule against the practice log without writing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			eval, err := env.flow.Evaluate(ctx)
			if err != nil {
				return err
			}

			unlocked := make(map[string]time.Time, len(eval.Unlocks))
			for _, u := range eval.Unlocks {
				unlocked[u.RuleID] = u.UnlockedAt
			}

			var rows []progressRow
			for _, p := range eval.Progress {
				row := progressRow{
					RuleID:    p.RuleID,
					Value:     p.CurrentValue,
					Threshold: p.Threshold,
					Percent:   p.ProgressPercent,
					Satisfied: p.IsSatisfied,
				}
				if at, ok := unlocked[p.RuleID]; ok {
					row.Unlocked = true
					row.UnlockedAt = &at
				} else if p.EstimatedSatisfiedAt != nil {
					row.UnlockedAt = p.EstimatedSatisfiedAt
				}
				if pendingOnly && (!row.Satisfied || row.Unlocked) {
					continue
				}
				rows = append(rows, row)
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "RULE\tPROGRESS\tPCT\tSTATE\tAT")
			for _, r := range rows {
				state := "locked"
				switch {
				case r.Unlocked:
					state = "unlocked"
				case r.Satisfied:
					state = "pending"
				}
				at := ""
				if r.UnlockedAt != nil {
					at = r.UnlockedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%g/%g\t%d%%\t%s\t%s\n", r.RuleID, r.Value, r.Threshold, r.Percent, state, at)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "only satisfied rules without an unlock record")
	return cmd
}

type reconcileReport struct {
	RunID           string   `json:"run_id"`
	NewlyUnlocked   []string `json:"newly_unlocked"`
	AlreadyUnlocked []string `json:"already_unlocked"`
	Failures        []string `json:"failures"`
}

func reportFrom(res *saga.AchievementFlowResult) reconcileReport {
	rep := reconcileReport{
		RunID:           res.RunID,
		NewlyUnlocked:   res.Reconcile.NewlyUnlockedIDs(),
		AlreadyUnlocked: res.Reconcile.AlreadyUnlocked,
	}
	for _, f := range res.Reconcile.Failures {
		rep.Failures = append(rep.Failures, fmt.Sprintf("%s: %v", f.RuleID, f.Err))
	}
	return rep
}

func printReport(w io.Writer, rep reconcileReport) {
	if len(rep.NewlyUnlocked) == 0 {
		fmt.Fprintln(w, "nothing new to unlock")
	} else {
		fmt.Fprintf(w, "unlocked: %s\n", strings.Join(rep.NewlyUnlocked, ", "))
	}
	if len(rep.AlreadyUnlocked) > 0 {
		fmt.Fprintf(w, "already unlocked elsewhere: %s\n", strings.Join(rep.AlreadyUnlocked, ", "))
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "failed: %s\n", f)
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Persist an unlock for every satisfied rule that has none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.flow.Execute(ctx, saga.AchievementFlowInput{Trigger: saga.TriggerManual})
			if err != nil {
				return err
			}

			rep := reportFrom(res)
			if opts.jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), rep)
			}
			if len(rep.Failures) > 0 {
				return fmt.Errorf("%d unlocks were not persisted; run reconcile again", len(rep.Failures))
			}
			return nil
		},
	}
}

func newLogSessionCmd(opts *rootOptions) *cobra.Command {
	var (
		exerciseID string
		tempo      int
		duration   time.Duration
		at         string
		faster     bool
	)

	cmd := &cobra.Command{
		Use:   "log-session",
		Short: "Log a practice session and reconcile achievements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			var practicedAt time.Time
			if at != "" {
				practicedAt, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
			}

			handler := command.NewRecordSessionHandler(env.stores.Sessions, env.stores.Exercises, env.flow, nil, command.RecordSessionConfig{
				RequireKnownExercise: env.cfg.Achievements.RequireKnownExercise,
				Logger:               env.log,
			})
			res, err := handler.Handle(ctx, command.RecordSessionCommand{
				ExerciseID:      exerciseID,
				Tempo:           tempo,
				DurationSeconds: int(duration / time.Second),
				PracticedAt:     practicedAt,
				ReadyForFaster:  faster,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logged session %s (%s at %d BPM)\n", res.Session.ID, res.Session.ExerciseID, res.Session.Tempo)
			if res.FlowErr != nil {
				return errors.Join(errors.New("session logged but reconciliation failed; run reconcile"), res.FlowErr)
			}
			printReport(out, reportFrom(res.Flow))
			return nil
		},
	}
	cmd.Flags().StringVar(&exerciseID, "exercise", "", "exercise id")
	cmd.Flags().IntVar(&tempo, "tempo", 0, "tempo in BPM")
	cmd.Flags().DurationVar(&duration, "duration", 0, "practice time, e.g. 15m")
	cmd.Flags().StringVar(&at, "at", "", "when the session happened (RFC3339, default now)")
	cmd.Flags().BoolVar(&faster, "ready-for-faster", false, "mark the exercise as ready for a higher tempo")
	_ = cmd.MarkFlagRequired("exercise")
	return cmd
}
