package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/relaychat/internal/auth"
	"github.com/PaulBabatuyi/relaychat/internal/config"
	"github.com/PaulBabatuyi/relaychat/internal/logging"
	"github.com/PaulBabatuyi/relaychat/internal/retention"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "relaychat",
		Short:         "Push-delivered one-to-one chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml); env vars take precedence")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		logging.Init(cfg.Env, cfg.LogLevel)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired api keys and messaging tokens once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := retention.RunOnce(cmd.Context(), a.svc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired credentials\n", n)
			return nil
		},
	})

	root.AddCommand(newDevTokenCmd(load))
	return root
}

// newDevTokenCmd signs an identity token with IDP_HMAC_SECRET so a local
// server can be exercised without a real identity provider.
func newDevTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		id  auth.Identity
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Print an HS256 identity token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.IDPHMACSecret == "" {
				return errors.New("devtoken needs IDP_HMAC_SECRET")
			}
			signer := auth.NewHMACSigner([]byte(cfg.IDPHMACSecret), cfg.IDPIssuer, cfg.IDPAudience, ttl)
			token, err := signer.Sign(id, time.Now())
			if err != nil {
				return err
			}
			log.Debug().Str("sub", id.UserID).Msg("signed dev token")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&id.UserID, "sub", "", "subject (user id)")
	f.StringVar(&id.Email, "email", "", "email claim")
	f.StringVar(&id.Name, "name", "", "name claim")
	f.StringVar(&id.Picture, "picture", "", "picture claim")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// shutdownTimeout bounds how long in-flight requests get on SIGTERM.
const shutdownTimeout = 10 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
