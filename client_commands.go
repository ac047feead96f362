package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"videoconverter/client"
	"videoconverter/models"
)

func newUploadCommand() *cobra.Command {
	var serverURL string
	var recursive bool
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Upload every video in a folder and follow the conversions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			files, err := client.ScanFolder(args[0], recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no compatible files found in %s (looked for %s)", args[0], strings.Join(client.VideoExtensions, ", "))
			}
			fmt.Fprintf(out, "Found %d files to convert. Adding to queue...\n", len(files))

			c := client.New(serverURL, nil)
			added := 0
			for _, path := range files {
				job, err := c.Upload(ctx, path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to add %s: %v\n", path, err)
					continue
				}
				added++
				fmt.Fprintf(out, "queued #%d %s\n", job.ID, job.OriginalName)
			}
			fmt.Fprintf(out, "Added %d of %d files to the conversion queue.\n", added, len(files))
			if added == 0 {
				return fmt.Errorf("no files could be added")
			}

			if noWatch {
				return nil
			}
			return watchJobs(ctx, c, out)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Conversion API base URL")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subfolders")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Return once files are queued")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var serverURL string
	var downloadPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the job list until every conversion has finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := client.New(serverURL, nil)
			if err := watchJobs(ctx, c, cmd.OutOrStdout()); err != nil {
				return err
			}
			if downloadPath == "" {
				return nil
			}
			return downloadArchive(ctx, c, downloadPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Conversion API base URL")
	cmd.Flags().StringVar(&downloadPath, "download", "", "Save all converted files as a zip once finished")
	return cmd
}

func watchJobs(ctx context.Context, c *client.Client, out io.Writer) error {
	poller := client.NewPoller(c, func(jobs []*models.ConversionJob) {
		fmt.Fprintln(out, renderJobTable(jobs))
	}, client.DefaultPollInterval)

	jobs, err := poller.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, summarizeJobs(jobs))
	return nil
}

func downloadArchive(ctx context.Context, c *client.Client, path string, out io.Writer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	n, err := c.DownloadAll(ctx, f)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	fmt.Fprintf(out, "Saved %d bytes to %s\n", n, path)
	return nil
}
