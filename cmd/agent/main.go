// Command agent is the on-device side of homepresence. It watches the
// wireless link, reports presence changes and keeps a local cache of the
// friend statuses pushed to this device.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/api/apiclient"
	"github.com/prudhvinik1/homepresence/internal/config"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/presence"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/prudhvinik1/homepresence/internal/statuscache"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// agent bundles what every subcommand needs.
type agent struct {
	cfg     config.AgentConfig
	logger  *slog.Logger
	pool    *database.SQLitePool
	kv      repositories.KeyValueStore
	creds   *apiclient.CredentialStore
	client  *apiclient.Client
	friends *statuscache.Cache
	leases  *repositories.SQLiteLeaseStore
	holder  string
}

func openAgent(configPath, logLevel string) (*agent, error) {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	pool, err := database.NewSQLitePool(cfg.DatabasePath(), 4, logger)
	if err != nil {
		return nil, err
	}

	kv := repositories.NewSQLiteKeyValueStore(pool)
	creds := apiclient.NewCredentialStore(kv)
	return &agent{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		kv:      kv,
		creds:   creds,
		client:  apiclient.New(cfg.ServerURL, creds),
		friends: statuscache.New(repositories.NewSQLiteFriendStatusStore(pool), logger),
		leases:  repositories.NewSQLiteLeaseStore(pool),
		holder:  uuid.NewString(),
	}, nil
}

func (a *agent) Close() {
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("closing sqlite pool failed", "error", err)
	}
}

func (a *agent) resolver() (*presence.CommandResolver, error) {
	command := a.cfg.ResolverCommand
	if command == "" {
		command = presence.DefaultResolverCommand
	}
	permitted := a.cfg.LocationPermission
	return presence.NewCommandResolver(command, a.cfg.Interface, a.logger,
		presence.WithPermissionCheck(func() bool { return permitted }),
	)
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "agent",
		Short:        "Share home presence with friends",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agent.yaml", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// withAgent opens the agent for one subcommand and closes it afterwards.
	withAgent := func(fn func(ctx context.Context, a *agent, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openAgent(configPath, logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return fn(ctx, a, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Watch connectivity and report presence changes",
			RunE:  withAgent(runAgent),
		},
		loginCmd(withAgent),
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out and stop receiving friend updates",
			RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
				if err := a.client.Logout(ctx); err != nil {
					return err
				}
				return presence.NewSnapshotStore(a.kv).Clear(ctx)
			}),
		},
		friendsCmd(withAgent),
		&cobra.Command{
			Use:   "register-push",
			Short: "Register this device's push token with the server",
			RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
				token, err := statuscache.DeviceToken(ctx, a.kv)
				if err != nil {
					return err
				}
				if err := a.client.RegisterPushToken(ctx, token); err != nil {
					return err
				}
				fmt.Printf("push token registered: %s\n", token)
				return nil
			}),
		},
		bindCmd(withAgent),
		&cobra.Command{
			Use:   "report",
			Short: "Evaluate presence once and report it if it changed",
			RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
				reporter, err := a.reporter()
				if err != nil {
					return err
				}
				release, err := a.holdEvaluationLease(ctx, false)
				if err != nil {
					return err
				}
				defer release()
				outcome := reporter.ReportIfChanged(ctx)
				fmt.Printf("%s (%s)\n", outcome.Result, outcome.State.Kind)
				if outcome.Result == presence.ResultFailed {
					return outcome.Reason
				}
				return nil
			}),
		},
	)
	return cmd
}

type agentRunner func(fn func(ctx context.Context, a *agent, args []string) error) func(*cobra.Command, []string) error

func loginCmd(withAgent agentRunner) *cobra.Command {
	var email, deviceName string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in this device (password from AGENT_PASSWORD)",
		RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
			password := os.Getenv("AGENT_PASSWORD")
			if email == "" || password == "" {
				return errors.New("--email and AGENT_PASSWORD are required")
			}
			if deviceName == "" {
				deviceName, _ = os.Hostname()
			}
			creds, err := a.client.Login(ctx, email, password, deviceName)
			if err != nil {
				return err
			}
			fmt.Printf("signed in as %s (device %s)\n", creds.AccountID, creds.DeviceID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&deviceName, "device-name", "", "Device name (defaults to hostname)")
	return cmd
}

func friendsCmd(withAgent agentRunner) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Show the cached status of every friend",
		RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
			if refresh {
				records, err := a.client.FriendStatuses(ctx)
				if err != nil {
					return err
				}
				if err := a.friends.Seed(ctx, records); err != nil {
					return err
				}
			}
			entries, err := a.friends.List(ctx)
			if err != nil {
				return err
			}
			printFriends(entries)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch current statuses from the server first")
	return cmd
}

func bindCmd(withAgent agentRunner) *cobra.Command {
	var binding models.LocationBinding
	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Name an access point (the current one by default)",
		RunE: withAgent(func(ctx context.Context, a *agent, _ []string) error {
			if binding.AccessPointID == "" {
				resolver, err := a.resolver()
				if err != nil {
					return err
				}
				ap, ok := resolver.Resolve(ctx)
				if !ok {
					return errors.New("not connected to a wireless access point; pass --access-point")
				}
				binding.AccessPointID = ap
			}
			saved, err := a.client.PutBinding(ctx, &binding)
			if err != nil {
				return err
			}
			fmt.Printf("%s bound to %q\n", saved.AccessPointID, saved.DisplayName)
			return nil
		}),
	}
	cmd.Flags().StringVar(&binding.DisplayName, "name", "", "Location name")
	cmd.Flags().StringVar(&binding.AccessPointID, "access-point", "", "Access point id (BSSID)")
	cmd.Flags().StringVar(&binding.IconID, "icon", "", "Icon id")
	cmd.Flags().StringVar(&binding.ColorHex, "color", "", "Color as #RRGGBB")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func printFriends(entries []*models.FriendStatusEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FRIEND\tLOCATION\tONLINE\tUPDATED")
	for _, e := range entries {
		location := e.LocationName
		if location == "" {
			location = "-"
		}
		updated := time.UnixMilli(e.ReceivedAtEpochMillis).Format(time.DateTime)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.FriendID, location, strconv.FormatBool(e.IsOnline), updated)
	}
	_ = w.Flush()
}
