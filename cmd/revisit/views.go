package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/revisit/internal/domain"
)

func newDueCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show the problems due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := a.tracker.DueForReview(cmd.Context(), a.cfg.User, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(due) == 0 {
				fmt.Fprintln(out, "Nothing due. Good job.")
				return nil
			}

			now := a.clock.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROBLEM\tDIFFICULTY\tMASTERY\tAVG\tDUE\tTOPICS")
			for _, r := range due {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
					r.ProblemID, r.Difficulty, r.Mastery, r.AverageConfidence(),
					humanize.RelTime(r.NextReviewDate, now, "ago", "from now"),
					strings.Join(r.Topics, ", "))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			total, err := a.tracker.DueCount(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			if total > len(due) {
				fmt.Fprintf(out, "\nShowing %d of %s due.\n", len(due), humanize.Comma(int64(total)))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of problems (default from config)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.tracker.ReviewStats(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Problems:       %s\n", humanize.Comma(int64(s.TotalProblems)))
			fmt.Fprintf(out, "Due now:        %s\n", humanize.Comma(int64(s.DueForReview)))
			fmt.Fprintf(out, "Reviews:        %s\n", humanize.Comma(int64(s.TotalReviews)))
			fmt.Fprintf(out, "Avg confidence: %.2f\n", s.AverageConfidence)
			fmt.Fprintf(out, "Streak:         %d days\n", s.StreakDays)
			for _, level := range domain.MasteryLevels {
				fmt.Fprintf(out, "  %-11s %d\n", level, s.ByMastery[level])
			}
			if len(s.WeeklyProgress) > 0 {
				fmt.Fprintln(out, "Recent activity:")
				for _, d := range s.WeeklyProgress {
					fmt.Fprintf(out, "  %s  %s\n", d.Day, strings.Repeat("#", d.Count))
				}
			}
			return nil
		},
	}
}

func newWeakCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "weak",
		Short: "Show the topics you are weakest at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			weak, err := a.tracker.WeakTopics(cmd.Context(), a.cfg.User, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(weak) == 0 {
				fmt.Fprintln(out, "No weak topics yet.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tPROBLEMS\tAVG")
			for _, t := range weak {
				fmt.Fprintf(w, "%s\t%d\t%.2f\n", t.Topic, t.Count, t.AverageConfidence)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of topics (default from config)")
	return cmd
}

func newRecommendCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest solved problems worth tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.tracker.RecommendedForReview(cmd.Context(), a.cfg.User, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "Every solved problem is already tracked.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tPROBLEM\tTITLE\tDIFFICULTY\tTOPICS")
			for _, r := range recs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Importance, r.Problem.ProblemID,
					r.Problem.Title, r.Problem.Difficulty, strings.Join(r.Problem.Topics, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of suggestions")
	return cmd
}
