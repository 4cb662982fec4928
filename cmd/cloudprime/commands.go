package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloudprime/internal/core"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "cloudprime",
		Short: "Upload images to a CloudPrime server",
		Long: `cloudprime sends files to a CloudPrime server through the API key
upload endpoint and reports the public URL of each one.

Settings are read from flags, CLOUDPRIME_* environment variables and the
config file, in that order. Use "cloudprime config set" to persist them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("server", "s", "", "server URL (default "+defaultServer+")")
	root.PersistentFlags().StringP("api-key", "k", "", "API key")
	root.PersistentFlags().Duration("timeout", 0, "per-request timeout (default 2m)")
	v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	v.BindPFlag("api_key", root.PersistentFlags().Lookup("api-key"))
	v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	root.AddCommand(newUploadCmd(v), newUsageCmd(v), newConfigCmd(v))
	return root
}

func newClient(v *viper.Viper) (*core.Client, error) {
	key := v.GetString("api_key")
	if key == "" {
		return nil, errors.New(`no API key configured; run "cloudprime config set api_key <key>" or pass --api-key`)
	}
	return core.NewClient(v.GetString("server"), key, v.GetDuration("timeout")), nil
}

func newUploadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "upload <files|dirs...>",
		Aliases: []string{"up", "u"},
		Short:   "Upload files and directories",
		Long: `Upload every file named on the command line. Directories are walked
recursively and hidden entries are skipped. Empty files and files larger
than --max-size are reported and left out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}

			parsed, err := core.ParseArgs(args)
			if err != nil {
				return err
			}
			tree, err := core.BuildFiletree(parsed)
			if err != nil {
				return fmt.Errorf("failed to read files: %w", err)
			}
			batch := core.NewBatch(tree, v.GetInt64("max_size"))

			out := cmd.OutOrStdout()
			for _, s := range batch.Skipped {
				fmt.Fprintf(out, "skip  %s (%s)\n", s.File.Display(), s.Reason)
			}
			if len(batch.Files) == 0 {
				return errors.New("nothing to upload")
			}

			return runUploads(cmd.Context(), client, batch, v.GetInt("parallel"), out)
		},
	}

	cmd.Flags().Int64("max-size", 0, "skip files larger than this many bytes (default 100MB)")
	cmd.Flags().IntP("parallel", "p", 0, "number of concurrent uploads (default 2)")
	v.BindPFlag("max_size", cmd.Flags().Lookup("max-size"))
	v.BindPFlag("parallel", cmd.Flags().Lookup("parallel"))
	return cmd
}

type uploadOutcome struct {
	url string
	err error
}

// runUploads sends the batch with bounded concurrency and prints one line
// per file in batch order. Authentication failures stop the run; any other
// failure is reported and the rest of the batch continues.
func runUploads(ctx context.Context, client *core.Client, batch *core.Batch, parallel int, out io.Writer) error {
	if parallel < 1 {
		parallel = 1
	}

	outcomes := make([]uploadOutcome, len(batch.Files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	var mu sync.Mutex
	for i, f := range batch.Files {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result, err := client.Upload(ctx, f.Path())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcomes[i].err = err
				if core.IsStatus(err, http.StatusUnauthorized) || core.IsStatus(err, http.StatusForbidden) {
					return err
				}
				return nil
			}
			outcomes[i].url = result.PublicURL
			return nil
		})
	}
	fatal := g.Wait()

	failed := 0
	for i, f := range batch.Files {
		o := outcomes[i]
		switch {
		case o.err != nil:
			failed++
			fmt.Fprintf(out, "fail  %s: %v\n", f.Display(), o.err)
		case o.url != "":
			fmt.Fprintf(out, "ok    %s -> %s\n", f.Display(), o.url)
		default:
			failed++
			fmt.Fprintf(out, "stop  %s: not attempted\n", f.Display())
		}
	}

	if fatal != nil {
		return fmt.Errorf("upload aborted: %w", fatal)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(batch.Files))
	}
	fmt.Fprintf(out, "uploaded %d files (%s)\n", len(batch.Files), humanSize(batch.Size()))
	return nil
}

func newUsageCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show usage of the configured API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			usage, err := client.Usage(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Key:          %s\n", usage.KeyName)
			fmt.Fprintf(out, "Active:       %t\n", usage.IsActive)
			fmt.Fprintf(out, "This month:   %d / %d (%d%%)\n", usage.UploadsThisMonth, usage.UploadLimit, usage.UsagePercentage)
			fmt.Fprintf(out, "API uploads:  %d\n", usage.TotalUploads)
			fmt.Fprintf(out, "Requests:     %d\n", usage.UsageCount)
			if usage.LastUsed != nil {
				fmt.Fprintf(out, "Last used:    %s\n", usage.LastUsed.Local().Format("2006-01-02 15:04"))
			}
			if !usage.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires:      %s\n", usage.ExpiresAt.Local().Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage client configuration",
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Keys: " + strings.Join(configKeys, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !isConfigKey(key) {
				return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(configKeys, ", "))
			}

			if err := checkValue(key, value); err != nil {
				return err
			}

			path := v.ConfigFileUsed()
			if err := saveSetting(path, key, value); err != nil {
				return err
			}
			v.Set(key, value)

			fmt.Fprintf(cmd.OutOrStdout(), "%s saved to %s\n", key, path)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !isConfigKey(key) {
				return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(configKeys, ", "))
			}
			value := v.GetString(key)
			if key == "api_key" && value != "" {
				value = maskKey(value)
			}
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", key)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}

// saveSetting writes one key to the config file. Only what the file already
// holds is written back, so flag and environment values are never persisted.
func saveSetting(path, key, value string) error {
	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	file.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config permissions: %w", err)
	}
	return nil
}

func checkValue(key, value string) error {
	var err error
	switch key {
	case "timeout":
		_, err = time.ParseDuration(value)
	case "max_size", "parallel":
		var n int64
		n, err = strconv.ParseInt(value, 10, 64)
		if err == nil && n < 0 {
			err = errors.New("must not be negative")
		}
	case "server":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			err = errors.New("must start with http:// or https://")
		}
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// maskKey shows the first and last four characters of a key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}
