package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/logfile"
)

func emitCmd() *cobra.Command {
	var (
		rate    float64
		records int
		count   int
	)

	cmd := &cobra.Command{
		Use:   "emit FILE",
		Short: "Write synthetic cycles to an event log",
		Long: `Create (or truncate) an event log and append synthetic cycles at a fixed
rate until interrupted. Useful for exercising "logcast serve".

Examples:
  logcast emit --rate 50 run/events.log
  logcast emit --count 100 run/events.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ec := cfg.Emit
			if cmd.Flags().Changed("rate") {
				ec.Rate = rate
			}
			if cmd.Flags().Changed("records") {
				ec.RecordsPerCycle = records
			}

			w, err := logfile.Create(args[0], map[string]any{
				"producer":          "logcast emit",
				"rate":              ec.Rate,
				"records_per_cycle": ec.RecordsPerCycle,
				"started":           time.Now().Unix(),
			})
			if err != nil {
				return err
			}
			defer w.Close()

			logger.Info("emitting",
				zap.String("file", args[0]),
				zap.Float64("rate", ec.Rate),
				zap.Int("records_per_cycle", ec.RecordsPerCycle),
			)

			written, err := logfile.NewEmitter(w, ec.Rate, ec.RecordsPerCycle, logger).Run(cmd.Context(), count)
			logger.Info("emitter stopped", zap.Int("cycles", written))
			return err
		},
	}

	cmd.Flags().Float64Var(&rate, "rate", 20, "cycles per second")
	cmd.Flags().IntVar(&records, "records", 4, "events per cycle")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many cycles (0 = until interrupted)")

	return cmd
}
