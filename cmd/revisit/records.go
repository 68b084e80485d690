package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/revisit/internal/problemkey"
	"github.com/conorfennell/revisit/internal/service"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		in     service.AddInput
		topics string
	)
	cmd := &cobra.Command{
		Use:   "add <problem-id>",
		Short: "Start reviewing a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.UserID = a.cfg.User
			in.ProblemID = args[0]
			in.Topics = problemkey.SplitTopics(topics)

			rec, err := a.tracker.AddToReview(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s), first review %s\n",
				rec.ProblemID, rec.Mastery, humanize.RelTime(rec.NextReviewDate, a.clock.Now(), "ago", "from now"))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Problem title (defaults to the id)")
	cmd.Flags().StringVarP(&in.Difficulty, "difficulty", "d", "Medium", "Easy, Medium or Hard")
	cmd.Flags().StringVarP(&topics, "topics", "t", "", "Comma-separated topics (e.g. array,hash table)")
	cmd.Flags().IntVarP(&in.Confidence, "confidence", "c", 0, "How confident you are, 1 to 5")
	cmd.Flags().StringVarP(&in.Notes, "notes", "n", "", "Free-text notes")
	cmd.Flags().StringSliceVar(&in.Insights, "insight", nil, "Key insight (repeatable)")
	_ = cmd.MarkFlagRequired("topics")
	_ = cmd.MarkFlagRequired("confidence")
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	var in service.ReviewInput
	cmd := &cobra.Command{
		Use:   "review <problem-id> <confidence 1-5>",
		Short: "Record a review of a problem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			confidence, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("confidence must be a number from 1 to 5, got %q", args[1])
			}
			in.UserID = a.cfg.User
			in.ProblemID = args[0]
			in.Confidence = confidence

			rec, err := a.tracker.RecordReview(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s (average %.2f over %d reviews). Next review in %s, %s.\n",
				rec.ProblemID, rec.Mastery, rec.AverageConfidence(), rec.TotalReviews,
				days(rec.Interval), rec.NextReviewDate.Format("Mon 2 Jan 2006"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Notes, "notes", "n", "", "Replace the problem's notes")
	cmd.Flags().StringSliceVar(&in.Insights, "insight", nil, "Key insight to add (repeatable)")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <problem-id>",
		Short: "Stop reviewing a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.tracker.RemoveFromReview(cmd.Context(), a.cfg.User, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", problemkey.Normalize(args[0]))
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <problem-id>",
		Short: "List the reviews of a problem, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.tracker.Record(cmd.Context(), a.cfg.User, args[0])
			if err != nil {
				return err
			}
			events, err := a.tracker.History(cmd.Context(), a.cfg.User, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %s)\n", rec.Title, rec.Difficulty, strings.Join(rec.Topics, ", "))
			if rec.Notes != "" {
				fmt.Fprintf(out, "Notes: %s\n", rec.Notes)
			}
			for _, insight := range rec.Insights {
				fmt.Fprintf(out, "  * %s\n", insight)
			}
			now := a.clock.Now()
			for _, ev := range events {
				fmt.Fprintf(out, "%s  %d/5  %s\n", ev.Day, ev.Confidence,
					humanize.RelTime(ev.ReviewedAt, now, "ago", "from now"))
			}
			return nil
		},
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return humanize.Comma(int64(n)) + " days"
}
