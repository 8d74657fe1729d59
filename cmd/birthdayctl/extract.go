package main

import (
	"fmt"

	"birthday-wall/backend/internal/sources"

	"github.com/spf13/cobra"
)

func newExtractHTMLCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "extract-html <file.html>",
		Short: "Print the messages found in a saved page of the wall",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sources.LoadHTMLFile(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				return sources.EncodeJSON(cmd.OutOrStdout(), src.Messages)
			}
			if err := sources.WriteJSONFile(outPath, src.Messages); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d messages to %s\n", len(src.Messages), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write JSON here instead of stdout.")
	return cmd
}
