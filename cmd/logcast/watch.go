package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/archive"
	"github.com/dgnsrekt/logcast/internal/client"
	"github.com/dgnsrekt/logcast/internal/codec"
	"github.com/dgnsrekt/logcast/internal/logfile"
)

func watchCmd() *cobra.Command {
	var record string

	cmd := &cobra.Command{
		Use:   "watch [ADDRESS]",
		Short: "Subscribe to a log server and report what arrives",
		Long: `Connect to a log server, report snapshot progress and the size of every
cycle received. With --record the stream is also saved to a zstd archive
that "logcast unpack" turns back into an event log.

Examples:
  logcast watch 127.0.0.1:20200
  logcast watch --record session.zst`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cc := cfg.Client
			if len(args) == 1 {
				cc.Address = args[0]
			}
			if cmd.Flags().Changed("record") {
				cc.RecordPath = record
			}

			c, err := client.Dial(ctx, cc.Address, client.Options{
				IOTimeout: cc.IOTimeout,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer c.Close()

			var rec *archive.Writer
			if cc.RecordPath != "" {
				rec, err = archive.Create(cc.RecordPath)
				if err != nil {
					return err
				}
				defer func() {
					if err := rec.Close(); err != nil {
						logger.Error("closing recording", zap.Error(err))
					}
					logger.Info("recording saved",
						zap.String("path", cc.RecordPath),
						zap.Int("records", rec.Records()),
					)
				}()
			}

			var recordErr error
			save := func(write func() error) {
				if rec == nil || recordErr != nil {
					return
				}
				if err := write(); err != nil {
					recordErr = err
					logger.Error("recording failed, continuing without it", zap.Error(err))
				}
			}

			c.OnOptions(func(options map[string]any) {
				logger.Info("log options", zap.Any("options", options))
				save(func() error { return rec.WriteOptions(options) })
			})
			c.OnInitProgress(func(rx, initSize uint64) {
				logger.Debug("snapshot progress", zap.Uint64("rx", rx), zap.Uint64("init_size", initSize))
			})
			c.OnInitDone(func() {
				size, _ := c.InitSize()
				logger.Info("snapshot received", zap.Uint64("rx", c.RX()), zap.Uint64("init_size", size))
			})
			c.OnData(func(payload []byte) {
				save(func() error { return rec.WriteRecord(payload) })

				cycle, err := logfile.DecodeCycle(payload)
				if err != nil {
					fields := []zap.Field{zap.Int("bytes", len(payload))}
					if diag, diagErr := codec.Diagnose(payload); diagErr == nil {
						fields = append(fields, zap.String("cbor", diag))
					}
					logger.Debug("opaque record", fields...)
					return
				}
				if c.InitDone() {
					logger.Info("cycle", zap.Int("events", len(cycle)), zap.Int("bytes", len(payload)))
				}
			})

			logger.Info("subscribed", zap.String("address", cc.Address))
			return c.Run(ctx, cc.PollInterval, cc.MaxProcessTime)
		},
	}

	cmd.Flags().StringVarP(&record, "record", "r", "", "save the stream to this zstd archive")

	return cmd
}
