package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/filiup/quizsession/internal/apiclient"
	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/logger"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/proctor"
	"github.com/filiup/quizsession/internal/push"
	"github.com/filiup/quizsession/internal/response"
	"github.com/filiup/quizsession/internal/session"
	"github.com/filiup/quizsession/internal/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quiz",
		Short:        "Take a timed quiz in the terminal",
		SilenceUsage: true,
	}
	root.AddCommand(newTakeCmd())
	return root
}

func newTakeCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "take <quiz-id>",
		Short: "Start or resume a quiz attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return errors.New("a student token is required (--token or QUIZ_TOKEN)")
			}
			f, err := os.OpenFile(cfg.ClientLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			log := logger.SetupWriter(cfg.LogLevel, "json", f)

			return take(cmd.Context(), cfg, args[0], log)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&cfg.APIURL, "api", cfg.APIURL, "attempt API base URL")
	fl.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "push stream base URL (derived from --api when empty)")
	fl.StringVar(&cfg.Token, "token", cfg.Token, "student bearer token")
	fl.StringVar(&cfg.ClientLogFile, "log-file", cfg.ClientLogFile, "where to write logs")
	fl.BoolVar(&cfg.DisableLockdown, "no-lockdown", cfg.DisableLockdown, "do not arm the lockdown monitor")
	fl.BoolVar(&cfg.DisablePushStream, "no-push", cfg.DisablePushStream, "do not subscribe to the push stream")
	return cmd
}

func take(parent context.Context, cfg *config.Config, quizID string, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	api := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.HTTPTimeout,
	}, log)

	quiz, err := api.GetQuiz(ctx, quizID)
	if err != nil {
		return startError(fmt.Errorf("load quiz: %w", err))
	}

	term := proctor.NewTerminal(os.Stdin, os.Stdout, log)
	if err := term.Start(ctx); err != nil {
		return err
	}
	defer term.Close()

	var monitor *proctor.Monitor
	if !cfg.DisableLockdown {
		monitor = proctor.NewMonitor(term, proctor.Options{
			FullscreenRetry: cfg.FullscreenRetry,
			Logger:          log,
		})
	}

	changes := make(chan session.Snapshot, 1)
	ctrl := session.New(api, session.Options{
		ViolationLimit: cfg.ViolationLimit,
		SaveDebounce:   cfg.SaveDebounce,
		CallTimeout:    cfg.HTTPTimeout,
		Lockdown:       monitor,
		OnChange:       latest(changes),
		Logger:         log,
	})
	defer ctrl.Close()

	st, err := ctrl.Start(ctx, quiz)
	if err != nil {
		term.Close()
		return startError(err)
	}

	var pushCh <-chan model.PushMessage
	if !cfg.DisablePushStream {
		pushCh = push.NewClient(cfg.PushURL(), cfg.Token, log).Subscribe(ctx, st.AttemptID)
	}
	go func() {
		if err := ctrl.Run(ctx, pushCh); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Session loop stopped")
		}
	}()

	width := func() int {
		w, _, err := term.Size()
		if err != nil {
			return 80
		}
		return w
	}
	final, err := tui.NewApp(ctrl, term.Keys(), changes, os.Stdout, width, log).Run(ctx)

	ctrl.Close()
	term.Close()
	summarize(final)
	return err
}

// latest returns an OnChange that keeps only the newest snapshot in ch.
func latest(ch chan session.Snapshot) func(session.Snapshot) {
	return func(s session.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

func startError(err error) error {
	switch {
	case errors.Is(err, session.ErrAlreadyCompleted):
		return errors.New("you have already completed this quiz")
	case errors.Is(err, session.ErrInvalidQuiz):
		return errors.New("this quiz has no questions or no time limit")
	case apiclient.IsCode(err, response.ErrQuizNotFound):
		return errors.New("quiz not found")
	case apiclient.IsCode(err, response.ErrTokenInvalid), apiclient.IsCode(err, response.ErrTokenRequired):
		return errors.New("the student token was rejected")
	}
	return err
}

func summarize(s session.Snapshot) {
	switch {
	case s.Result != nil:
		fmt.Printf("Score: %d/%d (%.2f%%)\n", s.Result.Score, s.Result.MaxPossibleScore, s.Result.ScorePercentage)
	case s.Status == model.StatusExpired:
		fmt.Println("The attempt expired.")
	case s.Status == model.StatusInProgress:
		fmt.Println("Progress saved. Run the same command to resume.")
	}
}
