package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/db"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		email, password, role string
		firstName, lastName   string
	)
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account, typically the first admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := user.ParseRole(role)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			pg, err := db.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			svc := user.NewService(user.NewRepository(pg.Pool), audit.Discard{})
			u, err := svc.CreateUser(ctx, user.SystemActor, &user.User{
				Username:  args[0],
				Email:     email,
				FirstName: firstName,
				LastName:  lastName,
				Role:      r,
			}, password)
			if err != nil {
				return err
			}

			log.Info().Stringer("user_id", u.ID).Str("role", u.Role.String()).Msg("User created")
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "Email address")
	create.Flags().StringVar(&password, "password", "", "Initial password")
	create.Flags().StringVar(&role, "role", "admin", "Role: customer, staff or admin")
	create.Flags().StringVar(&firstName, "first-name", "", "First name")
	create.Flags().StringVar(&lastName, "last-name", "", "Last name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
