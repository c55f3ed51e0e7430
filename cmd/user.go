package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solalog/solalog-server/internal/model"
)

var (
	userUsername string
	userGender   string
	userID       string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and their tokens",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print its id and bearer token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		username := strings.TrimSpace(userUsername)
		if username == "" {
			return eris.New("--username is required")
		}
		if err := cfg.Validate("token"); err != nil {
			return err
		}
		issuer, err := initIssuer(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		u, err := st.CreateUser(ctx, username, model.ParseGender(userGender))
		if err != nil {
			return err
		}
		token, err := issuer.Issue(u.ID, u.Username)
		if err != nil {
			return err
		}

		zap.L().Info("user created", zap.String("user_id", u.ID), zap.String("username", u.Username))
		fmt.Fprintf(cmd.OutOrStdout(), "id:    %s\ntoken: %s\n", u.ID, token)
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an existing user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if userID == "" {
			return eris.New("--id is required")
		}
		if err := cfg.Validate("token"); err != nil {
			return err
		}
		issuer, err := initIssuer(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		u, err := st.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		token, err := issuer.Issue(u.ID, u.Username)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "display name (unique)")
	userCreateCmd.Flags().StringVar(&userGender, "gender", "", "male, female or other")
	userTokenCmd.Flags().StringVar(&userID, "id", "", "user id")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userTokenCmd)
	rootCmd.AddCommand(userCmd)
}
