package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Serve a recorded search session as an offline backend",
	Long: "Loads a JSONL file of recorded stream events and serves them over the backend's " +
		"streaming, scrape, process, session and sheet export endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		events, _ := cmd.Flags().GetString("events")
		port, _ := cmd.Flags().GetInt("port")
		delay, _ := cmd.Flags().GetDuration("delay")
		noStream, _ := cmd.Flags().GetBool("no-stream")

		if port == 0 {
			port = cfg.Replay.Port
		}
		if !cmd.Flags().Changed("delay") {
			delay = time.Duration(cfg.Replay.DelayMS) * time.Millisecond
		}

		rec, err := replay.LoadFile(events)
		if err != nil {
			return err
		}

		srv := replay.NewServer(rec,
			replay.WithDelay(delay),
			replay.WithStreaming(!noStream),
		)

		addr := fmt.Sprintf(":%d", port)
		zap.L().Info("replay: serving recording",
			zap.String("addr", addr),
			zap.String("events", events),
			zap.Int("count", rec.Len()),
		)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	replayCmd.Flags().String("events", "", "JSONL file of recorded stream events")
	_ = replayCmd.MarkFlagRequired("events")
	replayCmd.Flags().Int("port", 0, "listen port (default from replay.port)")
	replayCmd.Flags().Duration("delay", 0, "pause between streamed events (default from replay.delay_ms)")
	replayCmd.Flags().Bool("no-stream", false, "disable the streaming endpoint to exercise the fallback")
	rootCmd.AddCommand(replayCmd)
}
