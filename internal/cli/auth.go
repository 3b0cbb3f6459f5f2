package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	authService "github.com/jwalitptl/slot-booking/internal/service/auth"
	"github.com/jwalitptl/slot-booking/pkg/auth"
)

// NewHashPasswordCommand prints a bcrypt hash for SLOTS_ADMIN_PASSWORD_HASH.
// The password is read from stdin so it stays out of shell history.
func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash the admin password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.NewBcryptHasher(cost).Hash(password)
			if err != nil {
				if errors.Is(err, auth.ErrPasswordTooShort) {
					return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLen)
				}
				return err
			}

			result := struct {
				Hash string `json:"hash"`
			}{hash}
			return emit(cmd.OutOrStdout(), rootOpts, result, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, hash)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&cost, "cost", auth.DefaultBcryptCost, "bcrypt cost")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given on stdin")
	}
	return line, nil
}

// NewIssueTokenCommand mints an admin token for scripted access.
func NewIssueTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an admin access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			jwtSvc, err := auth.NewJWTService(auth.Config{
				Secret: cfg.JWT.Secret,
				Issuer: cfg.JWT.Issuer,
				TTL:    cfg.JWT.TTL,
			}, nil)
			if err != nil {
				return err
			}
			svc := authService.NewService(authService.Config{
				AdminEmail:        cfg.Admin.Email,
				AdminPasswordHash: cfg.Admin.PasswordHash,
			}, jwtSvc, nil, log)

			token, err := svc.IssueToken(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts, token, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token.AccessToken)
				return err
			})
		},
	}
}
