package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marianozunino/gallery/internal/app"
	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/config"
	"github.com/marianozunino/gallery/internal/gallery"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/session"
	"github.com/marianozunino/gallery/internal/utils"
)

const configFileName = "config.yaml"

// cli holds the state shared by every command of one invocation.
type cli struct {
	v     *viper.Viper
	cfg   *config.Config
	extra []app.Option
}

func configPath() string {
	return filepath.Join(config.ConfigDir(), configFileName)
}

func newRootCmd(extra ...app.Option) *cobra.Command {
	c := &cli{v: viper.New(), extra: extra}

	rootCmd := &cobra.Command{
		Use:   "gallery",
		Short: "Browse and manage your media gallery",
		Long: `gallery is a command-line client for a personal media gallery.

Features:
  • Files grouped by the day they were uploaded (in your time zone)
  • Preview, download and delete files
  • Upload many files at once
  • Notification history across runs

Quick start:
  gallery login --token <token>                 # Store your access token
  gallery list                                  # Show your files by day
  gallery upload a.jpg b.mp4                    # Upload files
  gallery config set server https://gallery.example.com/`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringP("server", "s", "", "Gallery server URL (default: http://localhost:8080/)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	c.v.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.listCmd(),
		c.showCmd(),
		c.downloadCmd(),
		c.deleteCmd(),
		c.uploadCmd(),
		c.notificationsCmd(),
		c.configCmd(),
	)
	return rootCmd
}

func (c *cli) loadConfig() error {
	config.SetDefaults(c.v)
	c.v.SetConfigFile(configPath())
	if err := c.v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error reading configuration: %w", err)
	}

	cfg, err := config.FromViper(c.v)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) logLevel(cmd *cobra.Command) string {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return "debug"
	}
	return c.cfg.LogLevel
}

// withApp builds the client, runs fn and closes the client, which waits for
// background work and pending redirects.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	stderr := cmd.ErrOrStderr()
	opts := []app.Option{
		app.WithToastSink(toastPrinter(stderr)),
		app.WithRedirector(loginRedirect(stderr, c.cfg.LoginTarget())),
		app.WithLogger(logging.New(stderr, c.logLevel(cmd))),
	}
	a, err := app.New(c.cfg, append(opts, c.extra...)...)
	if err != nil {
		return err
	}

	runErr := fn(cmd.Context(), a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func loginRedirect(w io.Writer, target string) session.Redirector {
	return session.RedirectFunc(func() {
		fmt.Fprintf(w, "Sign in at %s and run `gallery login`.\n", target)
	})
}

func (c *cli) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the access token used for every request",
		Long: `Store the bearer token issued by the gallery's login page.

Without --token you are prompted for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				if err := huh.Run(
					huh.NewInput().
						Title("Access token").
						Description("Paste the token from " + c.cfg.LoginTarget()).
						EchoMode(huh.EchoModePassword).
						Value(&token),
				); err != nil {
					return fmt.Errorf("could not read token: %w", err)
				}
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Session.Login(token); err != nil {
					return err
				}
				if err := a.Gallery.Load(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in. %s in your gallery.\n", utils.Plural(a.Gallery.Len(), "file"))
				return nil
			})
		},
	}
	cmd.Flags().StringP("token", "t", "", "Access token")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Session.Logout()
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "l"},
		Short:   "List files grouped by upload day, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Gallery.Load(ctx); err != nil {
					return err
				}
				a.Previews.Wait()
				printGallery(cmd.OutOrStdout(), a.Gallery, time.Now())
				return nil
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file_id>",
		Short: "Show a file and load its preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rec, err := a.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				a.Previews.Wait()
				// A failed preview is already reported; the details are still useful.
				a.Previews.LoadFull(ctx, rec)

				loc, err := c.cfg.Location()
				if err != nil {
					return err
				}
				printDetails(cmd.OutOrStdout(), rec, loc)
				return nil
			})
		},
	}
}

func (c *cli) downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "download <file_id>",
		Aliases: []string{"dl"},
		Short:   "Save a file to disk",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("output")
			if dir == "" {
				dir = c.cfg.DownloadDir
			}
			noProgress, _ := cmd.Flags().GetBool("no-progress")

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rec, err := a.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				if !noProgress {
					a.SetProgress(cmd.ErrOrStderr())
				}
				path, err := a.Downloads.Download(ctx, rec, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s (%s)\n", rec.Name, path, utils.FormatFileSize(rec.Size))
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Directory to save into (default: download_dir)")
	cmd.Flags().Bool("no-progress", false, "Disable the progress line")
	return cmd
}

func confirmDelete(prompt string) (bool, error) {
	var ok bool
	err := huh.Run(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&ok),
	)
	return ok, err
}

func (c *cli) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <file_id>",
		Aliases: []string{"d", "del", "rm"},
		Short:   "Delete a file from the gallery",
		Long: `Delete a file from the gallery. This cannot be undone.

You are asked to confirm unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			var confirmer gallery.Confirmer = gallery.ConfirmFunc(confirmDelete)
			if yes {
				confirmer = nil
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rec, err := a.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				err = a.Gallery.Delete(ctx, rec, confirmer)
				if errors.Is(err, gallery.ErrDeleteDeclined) {
					fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "upload <file>...",
		Aliases: []string{"u", "up"},
		Short:   "Upload one or more files in a single request",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.UploadPaths(ctx, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s in your gallery.\n", utils.Plural(a.Gallery.Len(), "file"))
				return nil
			})
		},
	}
}

func (c *cli) notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n", "history"},
		Short:   "Show past notifications, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clearLog, _ := cmd.Flags().GetBool("clear")
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if clearLog {
					a.Notifications.ClearNotifications()
					fmt.Fprintln(cmd.OutOrStdout(), "Notifications cleared.")
					return nil
				}
				printNotifications(cmd.OutOrStdout(), a.Notifications.Notifications())
				return nil
			})
		},
	}
	cmd.Flags().Bool("clear", false, "Clear the notification history")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"c", "cfg"},
		Short:   "Manage client configuration",
		Long: `Manage client configuration settings like the server URL.

Configuration is stored in ~/.gallery/config.yaml`,
	}

	setCmd := &cobra.Command{
		Use:     "set <key> <value>",
		Aliases: []string{"s"},
		Short:   "Set a configuration value",
		Long: `Set a configuration value.

Available keys:
  • server: Server URL (e.g., https://gallery.example.com/)
  • timezone: IANA zone used to group files by day (e.g., America/New_York)
  • download_dir, toast_duration, notification_limit, thumbnail_workers, ...

Example: gallery config set server https://gallery.example.com/`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := strings.ToLower(args[0]), args[1]
			if !slices.Contains(c.v.AllKeys(), key) {
				return fmt.Errorf("unknown configuration key %q", key)
			}

			c.v.Set(key, value)
			if _, err := config.FromViper(c.v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}

			path := configPath()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("error creating config directory: %w", err)
			}

			fileOnly := viper.New()
			fileOnly.SetConfigFile(path)
			if _, err := os.Stat(path); err == nil {
				if err := fileOnly.ReadInConfig(); err != nil {
					return fmt.Errorf("error reading configuration: %w", err)
				}
			}
			fileOnly.Set(key, value)
			if err := fileOnly.WriteConfigAs(path); err != nil {
				return fmt.Errorf("error saving configuration: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:     "get <key>",
		Aliases: []string{"g"},
		Short:   "Get a configuration value",
		Long: `Get a configuration value.

Example: gallery config get server`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])
			if !c.v.IsSet(key) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", key)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, c.v.Get(key))
			return nil
		},
	}

	configCmd.AddCommand(setCmd, getCmd)
	return configCmd
}

// reported is true for failures the client already showed as a toast.
func reported(err error) bool {
	var (
		serverErr  *apperr.ServerError
		partialErr *apperr.PartialFailure
		anomaly    *apperr.ValidationAnomaly
	)
	return errors.Is(err, apperr.ErrUnauthorized) ||
		errors.Is(err, apperr.ErrNetwork) ||
		errors.As(err, &serverErr) ||
		errors.As(err, &partialErr) ||
		errors.As(err, &anomaly)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
