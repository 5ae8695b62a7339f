package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/filiup/quizsession/internal/database"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/repository"
	"github.com/filiup/quizsession/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newSeedCmd loads a quiz (with answer key) from a JSON file.
func newSeedCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or replace a quiz from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var rec model.QuizRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if rec.Quiz.ID == "" {
				rec.Quiz.ID = uuid.New().String()
			} else if _, err := uuid.Parse(rec.Quiz.ID); err != nil {
				return fmt.Errorf("quiz id must be a UUID: %w", err)
			}
			if rec.Quiz.TimeLimitMinutes <= 0 {
				return fmt.Errorf("timeLimitMinutes must be positive")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pool, err := database.NewPostgresPool(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer pool.Close()
			rdb, err := database.NewRedisClient(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			quizzes := service.NewQuizService(repository.NewQuizRepository(pool), rdb, a.log)
			if err := quizzes.Save(ctx, &rec); err != nil {
				return err
			}
			a.log.Info().
				Str("quiz_id", rec.Quiz.ID).
				Int("questions", len(rec.Quiz.Questions)).
				Msg("Quiz seeded")
			fmt.Fprintln(cmd.OutOrStdout(), rec.Quiz.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "quiz JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
