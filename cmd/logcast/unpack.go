package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/archive"
)

func unpackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack ARCHIVE FILE",
		Short: "Turn a recording made by watch --record back into an event log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := archive.Extract(args[0], args[1])
			if err != nil {
				return err
			}
			logger.Info("archive unpacked",
				zap.String("archive", args[0]),
				zap.String("file", args[1]),
				zap.Int64("bytes", n),
			)
			return nil
		},
	}
}
