package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"birthday-wall/backend/pkg/jwt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

func newTokenCmd() *cobra.Command {
	var subject, role string
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token from the server's JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := jwt.NewService(viper.GetString("jwt-secret"), expiry)
			if err != nil {
				return fmt.Errorf("set JWT_SECRET: %w", err)
			}
			token, expiresAt, err := svc.Issue(subject, jwt.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cliLogger(cmd).Debug("Token issued", "subject", subject, "expires_at", expiresAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "birthdayctl", "Token subject.")
	cmd.Flags().StringVar(&role, "role", string(jwt.RoleAdmin), "Token role (admin or viewer).")
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "Token lifetime.")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange the operator password for an admin token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd); err != nil {
					return err
				}
			}
			res, err := apiClient().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "Operator user name.")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty).")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password read from stdin",
		Long:  "Print the bcrypt hash to put in ADMIN_PASSWORD_HASH.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readLine(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("empty password")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost.")
	return cmd
}

func readLine(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
