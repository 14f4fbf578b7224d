package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nicolagi/emoji/client"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	server  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:           "emojictl",
		Short:         "Emojictl manages the images of an emoji server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("EMOJI_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "emoji server base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "request timeout")

	cmd.AddCommand(
		newPutCmd(&opts),
		newGetCmd(&opts),
		newRmCmd(&opts),
		newLsCmd(&opts),
		newBlobsCmd(&opts),
		newInitCmd(&opts),
	)

	return cmd
}

func (o *globalOptions) client() (*client.Client, error) {
	opts := []client.Option{
		client.WithAddress(o.server),
		client.WithTimeout(o.timeout),
	}
	if user := os.Getenv("EMOJI_USER"); user != "" {
		opts = append(opts, client.WithBasicAuth(user, os.Getenv("EMOJI_PASSWORD")))
	}
	return client.New(opts...)
}

func newPutCmd(opts *globalOptions) *cobra.Command {
	var size string
	cmd := &cobra.Command{
		Use:   "put FILE",
		Short: "Upload an image, named after the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			filename := filepath.Base(args[0])
			if err := c.Put(cmd.Context(), filename, size, data); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", filename)
			return err
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "size: 24, 36, 48 or full")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	var size, output string
	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Download an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			data, _, err := c.Get(cmd.Context(), args[0], size)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0644)
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "size: 24, 36, 48 or full")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of standard output")
	return cmd
}

func newRmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Delete images, all sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := c.Delete(cmd.Context(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newLsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List image names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			names, err := c.Names(cmd.Context())
			if err != nil {
				return err
			}
			return writeLines(cmd, names)
		},
	}
}

func newBlobsCmd(opts *globalOptions) *cobra.Command {
	var size string
	cmd := &cobra.Command{
		Use:   "blobs",
		Short: "List the files in the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			filenames, err := c.Blobs(cmd.Context(), size)
			if err != nil {
				return err
			}
			return writeLines(cmd, filenames)
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "size: 24, 36, 48 or full")
	return cmd
}

func newInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Load the blob store into the server index, unless already done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			created, initialized, err := c.Init(cmd.Context())
			if err != nil {
				return err
			}
			if !initialized {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "already initialized")
				return err
			}
			return writeLines(cmd, created)
		},
	}
}

func writeLines(cmd *cobra.Command, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}
