package main

import (
	"fmt"

	"github.com/filiup/quizsession/internal/service"
	"github.com/spf13/cobra"
)

// newTokenCmd issues a student token. Sign-in belongs to the wider platform;
// this is for local testing and the terminal client.
func newTokenCmd(a *app) *cobra.Command {
	var studentID int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a student bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if studentID <= 0 {
				return fmt.Errorf("--student must be a positive ID")
			}
			tok, err := service.NewAuthService(a.cfg.JWTSecret, a.cfg.JWTExpiry).GenerateStudentToken(studentID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().IntVar(&studentID, "student", 0, "student ID to issue the token for")
	return cmd
}
