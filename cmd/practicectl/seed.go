package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/pkg/timeutil"
)

// seedFile is the YAML layout accepted by `practicectl seed --file`.
type seedFile struct {
	Segments []struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Order     int    `yaml:"order"`
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
	} `yaml:"segments"`

	Exercises []struct {
		ID                     string `yaml:"id"`
		Name                   string `yaml:"name"`
		Description            string `yaml:"description"`
		SegmentID              string `yaml:"segment_id"`
		DefaultTempo           int    `yaml:"default_tempo"`
		DefaultDurationSeconds int    `yaml:"default_duration_seconds"`
	} `yaml:"exercises"`
}

// defaultSeed is a two-segment rudiments course.
const defaultSeed = `
segments:
  - {id: week-1, name: Singles and Doubles, order: 1}
  - {id: week-2, name: Paradiddles, order: 2}
exercises:
  - {id: "1", name: Single Stroke Roll, segment_id: week-1, default_tempo: 80, default_duration_seconds: 300}
  - {id: "2", name: Double Stroke Roll, segment_id: week-1, default_tempo: 70, default_duration_seconds: 300}
  - {id: "3", name: Single Paradiddle, segment_id: week-2, default_tempo: 70, default_duration_seconds: 300}
  - {id: "4", name: Double Paradiddle, segment_id: week-2, default_tempo: 60, default_duration_seconds: 300}
`

func parseSeed(data []byte, loc *time.Location) ([]practice.Segment, []practice.Exercise, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse seed: %w", err)
	}

	segments := make([]practice.Segment, 0, len(f.Segments))
	for _, s := range f.Segments {
		seg := practice.Segment{ID: s.ID, Name: s.Name, Order: s.Order}
		if s.StartDate != "" {
			t, err := timeutil.ParseDate(s.StartDate, loc)
			if err != nil {
				return nil, nil, fmt.Errorf("segment %s start_date: %w", s.ID, err)
			}
			seg.StartDate = t
		}
		if s.EndDate != "" {
			t, err := timeutil.ParseDate(s.EndDate, loc)
			if err != nil {
				return nil, nil, fmt.Errorf("segment %s end_date: %w", s.ID, err)
			}
			seg.EndDate = t
		}
		if seg.ID == "" {
			return nil, nil, fmt.Errorf("segment %q has no id", s.Name)
		}
		segments = append(segments, seg)
	}

	exercises := make([]practice.Exercise, 0, len(f.Exercises))
	for _, e := range f.Exercises {
		if e.ID == "" {
			return nil, nil, fmt.Errorf("exercise %q has no id", e.Name)
		}
		exercises = append(exercises, practice.Exercise{
			ID:                     e.ID,
			Name:                   e.Name,
			Description:            e.Description,
			SegmentID:              e.SegmentID,
			DefaultTempo:           e.DefaultTempo,
			DefaultDurationSeconds: e.DefaultDurationSeconds,
		})
	}
	return segments, exercises, nil
}

func seed(ctx context.Context, repo practice.ExerciseRepository, segments []practice.Segment, exercises []practice.Exercise) error {
	for _, s := range segments {
		if err := repo.SaveSegment(ctx, s); err != nil {
			return fmt.Errorf("save segment %s: %w", s.ID, err)
		}
	}
	for _, e := range exercises {
		if err := repo.SaveExercise(ctx, e); err != nil {
			return fmt.Errorf("save exercise %s: %w", e.ID, err)
		}
	}
	return nil
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or replace segments and exercises",
		Long:  "Seed reference data from a YAML file, or a small built-in rudiments course when --file is omitted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			data := []byte(defaultSeed)
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return err
				}
			}

			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			segments, exercises, err := parseSeed(data, env.cfg.Achievements.Calendar.Location)
			if err != nil {
				return err
			}
			if err := seed(ctx, env.stores.Exercises, segments, exercises); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d segments and %d exercises\n", len(segments), len(exercises))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file")
	return cmd
}
