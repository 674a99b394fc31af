package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/levitate/internal/client"
	"github.com/okian/levitate/internal/domain/audio"
)

const defaultServer = "http://localhost:8000"

// clientFlags are shared by every command that talks to a running server.
type clientFlags struct {
	server  string
	timeout time.Duration
}

func (f *clientFlags) client() (*client.Client, error) {
	return client.New(f.server, client.WithTimeout(f.timeout))
}

func addClientCommands(root *cobra.Command) {
	flags := &clientFlags{}
	root.PersistentFlags().StringVar(&flags.server, "server", envOr("LEVITATE_SERVER", defaultServer), "base URL of a running levitate server")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", client.DefaultTimeout, "per request timeout")

	root.AddCommand(
		newStatusCmd(flags),
		newUploadCmd(flags),
		newGenerateCmd(flags),
		newMusicCmd(flags),
		newPlayCmd(flags),
		newHistoryCmd(flags),
		newBatchCmd(flags),
	)
}

func newStatusCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			res, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newUploadCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload tracks to the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			for _, path := range args {
				res, err := c.UploadFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newGenerateCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <key>",
		Short: "Generate artwork for an uploaded track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			res, err := c.Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newMusicCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "music",
		Short: "List the track library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			res, err := c.ListMusic(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newPlayCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play <key>",
		Short: "Print a temporary playback link for a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			url, err := c.PlaybackURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"url": url})
		},
	}
}

func newHistoryCmd(flags *clientFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			res, err := c.Generations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of generations to show (1-100)")
	return cmd
}

func newBatchCmd(flags *clientFlags) *cobra.Command {
	var (
		workers    int
		uploadOnly bool
	)
	cmd := &cobra.Command{
		Use:   "batch <file|dir>...",
		Short: "Upload and generate for many tracks concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectTracks(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .mp3 or .wav files in %v", args)
			}
			c, err := flags.client()
			if err != nil {
				return err
			}
			report := c.RunBatch(cmd.Context(), client.BatchConfig{
				Files:      files,
				Workers:    workers,
				UploadOnly: uploadOnly,
			})
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d tracks failed", report.Failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent uploads")
	cmd.Flags().BoolVar(&uploadOnly, "upload-only", false, "upload without generating")
	return cmd
}

// collectTracks expands directories into the audio files below them.
// Explicit file arguments are kept as given.
func collectTracks(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if _, ok := audio.FormatFromName(path); ok && !d.IsDir() {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
