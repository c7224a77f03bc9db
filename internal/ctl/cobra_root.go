package ctl

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imgload/internal/client"
	"imgload/internal/logging"
	"imgload/pkg/types"
)

// buildRootCmdWith constructs the command tree. Persistent flags start from
// cfg, so environment defaults show up in --help.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	var log zerolog.Logger
	root := &cobra.Command{
		Use:           "imgloadctl",
		Short:         "Control and inspect a running imgloadd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "imgloadd base URL (defaults IMGLOAD_SERVER)")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout (defaults IMGLOADCTL_TIMEOUT)")
	root.PersistentFlags().BoolVar(&cfg.JSON, "json", cfg.JSON, "Print raw JSON responses")
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults IMGLOADCTL_LOG_LEVEL)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log = logging.SetupWriter(cmd.ErrOrStderr(), cfg.LogLvl, false)
	}

	newClient := func() *client.Client {
		log.Debug().Str("server", cfg.Server).Dur("timeout", cfg.Timeout).Msg("client")
		return client.New(cfg.Server, client.WithTimeout(cfg.Timeout))
	}

	// image group
	var reg types.RegisterRequest
	var waitFor string
	registerCmd := &cobra.Command{Use: "register <id> <primary-url>", Short: "Register an image as visible", Example: "  imgloadctl register img-1 https://cdn.example.com/img-1/1920x1080.jpg --thumbnail https://cdn.example.com/img-1/thumb.jpg", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		reg.ID, reg.PrimaryURL = args[0], args[1]
		c := newClient()
		st, err := c.Register(cmd.Context(), reg)
		if err != nil {
			return err
		}
		if waitFor != "" && st.State != waitFor {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			if st, err = c.WaitForState(ctx, reg.ID, waitFor, "failed"); err != nil {
				return err
			}
			if st.State != waitFor {
				return fmt.Errorf("image %s reached %s", reg.ID, st.State)
			}
		}
		return printState(cmd, cfg, st)
	}}
	registerCmd.Flags().StringVar(&reg.ThumbnailURL, "thumbnail", "", "Thumbnail URL")
	registerCmd.Flags().StringVar(&reg.Priority, "priority", "", "Priority: low|normal|high")
	registerCmd.Flags().Float64Var(&reg.Scale, "scale", 0, "Zoom factor at registration (0 uses the committed scale)")
	registerCmd.Flags().Int64Var(&reg.SizeHint, "size-hint", 0, "Decoded size in bytes, if known")
	registerCmd.Flags().StringVar(&waitFor, "wait", "", "Block until the image reaches this state (within --timeout)")

	getCmd := &cobra.Command{Use: "get <id>", Short: "Show the state of an image", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().State(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printState(cmd, cfg, st)
	}}
	leaveCmd := &cobra.Command{Use: "leave <id>", Short: "Mark an image as out of the viewport", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Leave(cmd.Context(), args[0])
	}}
	forceCmd := &cobra.Command{Use: "force <id>", Aliases: []string{"full"}, Short: "Load the full-resolution image now", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Force(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printState(cmd, cfg, st)
	}}
	cancelCmd := &cobra.Command{Use: "cancel <id>", Aliases: []string{"rm"}, Short: "Forget an image and its pending work", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Cancel(cmd.Context(), args[0])
	}}

	var until string
	watchCmd := &cobra.Command{Use: "watch <id>", Short: "Stream state changes of an image", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if until != "" {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return newClient().Watch(ctx, args[0], func(st types.ImageState) error {
			if err := printState(cmd, cfg, st); err != nil {
				return err
			}
			if until != "" && st.State == until {
				return client.ErrStopWatch
			}
			return nil
		})
	}}
	watchCmd.Flags().StringVar(&until, "until", "", "Stop once this state is seen (within --timeout)")

	var outPath string
	blobCmd := &cobra.Command{Use: "blob <url>", Short: "Download cached bytes for a resource URL", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		b, ct, err := newClient().Blob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		log.Debug().Str("content_type", ct).Int("bytes", len(b)).Msg("blob")
		if outPath == "" || outPath == "-" {
			_, err = cmd.OutOrStdout().Write(b)
			return err
		}
		return os.WriteFile(outPath, b, 0o644)
	}}
	blobCmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to file instead of stdout")

	// loader group
	scaleCmd := &cobra.Command{Use: "scale <factor>", Short: "Report a new zoom factor", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid scale %q: %w", args[0], err)
		}
		sr, err := newClient().Scale(cmd.Context(), f)
		if err != nil {
			return err
		}
		if cfg.JSON {
			return printJSON(cmd.OutOrStdout(), sr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "requested %g (committed %g, source %s)\n", sr.Requested, sr.Scale, sr.Source)
		return nil
	}}
	statusCmd := &cobra.Command{Use: "status", Aliases: []string{"ls"}, Short: "Show loader status and registered images", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.JSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		return printStatus(cmd.OutOrStdout(), st)
	}}
	releaseCmd := &cobra.Command{Use: "release", Short: "Downgrade images that left the viewport long ago", RunE: func(cmd *cobra.Command, args []string) error {
		rr, err := newClient().Release(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.JSON {
			return printJSON(cmd.OutOrStdout(), rr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "downgraded %d, memory estimate %s\n", rr.Downgraded, humanBytes(rr.MemoryEstimateBytes))
		return nil
	}}
	clearCmd := &cobra.Command{Use: "clear", Short: "Drop every image and cache entry", RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Clear(cmd.Context())
	}}

	var within time.Duration
	waitCmd := &cobra.Command{Use: "wait", Short: "Wait until the server answers /healthz", Example: "  imgloadctl wait --within 30s", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), within)
		defer cancel()
		if err := newClient().WaitHealthy(ctx, 200*time.Millisecond); err != nil {
			return err
		}
		log.Info().Str("server", cfg.Server).Msg("server healthy")
		return nil
	}}
	waitCmd.Flags().DurationVar(&within, "within", 30*time.Second, "Give up after this long")

	root.AddCommand(registerCmd, getCmd, leaveCmd, forceCmd, cancelCmd, watchCmd, blobCmd,
		scaleCmd, statusCmd, releaseCmd, clearCmd, waitCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}})
	root.AddCommand(completionCmd)

	return root
}
