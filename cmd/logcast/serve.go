package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/server"
	"github.com/dgnsrekt/logcast/internal/tail"
)

func serveCmd() *cobra.Command {
	var (
		port           int
		samplingPeriod time.Duration
		statusAddr     string
	)

	cmd := &cobra.Command{
		Use:   "serve [FILE]",
		Short: "Broadcast an event log to every connecting subscriber",
		Long: `Tail an event log and stream it to TCP subscribers. Each subscriber first
receives everything logged so far, then every new record as it is written.

Examples:
  # Serve a log file on the default port (20200)
  logcast serve run/events.log

  # Sample faster and expose the status endpoint
  logcast serve --sampling-period 10ms --status-addr :8080 run/events.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sc := cfg.Server
			if len(args) == 1 {
				sc.EventFile = args[0]
			}
			if cmd.Flags().Changed("port") {
				sc.Port = port
			}
			if cmd.Flags().Changed("sampling-period") {
				sc.SamplingPeriod = samplingPeriod
			}
			if cmd.Flags().Changed("status-addr") {
				sc.StatusAddr = statusAddr
			}
			if sc.EventFile == "" {
				return fmt.Errorf("no event log given (pass FILE or set server.event_file)")
			}

			tailer, err := tail.Open(sc.EventFile, tail.WithFrameAlignment(sc.AlignFrames))
			if err != nil {
				return err
			}
			defer tailer.Close()

			opts := server.Options{
				SamplingPeriod: sc.SamplingPeriod,
				ChunkSize:      sc.ChunkSize,
				IOTimeout:      sc.IOTimeout,
			}
			if sc.WatchFile {
				wake, err := tail.Watch(ctx, tailer.Path(), logger)
				if err != nil {
					logger.Warn("file watch unavailable, sampling only", zap.Error(err))
				} else {
					opts.Wake = wake
				}
			}

			b := server.New(tailer, opts, logger)
			ln, err := server.Listen(sc.ListenAddr())
			if err != nil {
				return err
			}

			logger.Info("serving event log",
				zap.String("event_file", tailer.Path()),
				zap.String("addr", ln.Addr().String()),
				zap.Bool("align_frames", sc.AlignFrames),
				zap.Bool("watch_file", sc.WatchFile),
			)

			if sc.StatusAddr != "" {
				statusSrv := &http.Server{
					Addr:              sc.StatusAddr,
					Handler:           server.NewStatusRouter(b, logger),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logger.Info("status endpoint listening", zap.String("addr", sc.StatusAddr))
					if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("status endpoint failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = statusSrv.Shutdown(shutdownCtx)
				}()
			}

			return b.Serve(ctx, ln)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", server.DefaultPort, "TCP port to listen on")
	cmd.Flags().DurationVar(&samplingPeriod, "sampling-period", server.DefaultSamplingPeriod, "maximum delay between tail steps")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve /healthz and /status on this address")

	return cmd
}
