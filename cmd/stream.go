package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/openreach/browserpilot/api/schemas"
	"github.com/openreach/browserpilot/internal/observability"
	"github.com/openreach/browserpilot/internal/stream"
)

var streamCmd = &cobra.Command{
	Use:   "stream <session-id>",
	Short: "Open a live multimodal stream and relay stdin lines as text input.",
	Long: `Opens the live channel for a session and prints every inbound event.
Each stdin line is sent as a text_input frame; closing stdin stops sending
while the channel keeps receiving. Interrupt (Ctrl-C) ends the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	manager := stream.NewManager(cfg.Stream().BaseURL,
		stream.WithLogger(logger),
		stream.WithEventHandler(printEvent),
		stream.WithStatusHandler(func(status stream.Status) {
			fmt.Fprintf(os.Stderr, "[status] %s\n", status)
		}),
	)
	defer manager.Disconnect()

	if err := manager.Connect(ctx, sessionID); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if fps := cfg.Stream().FramesPerSecond; fps > 0 {
		limiter = rate.NewLimiter(rate.Limit(fps), cfg.Stream().FrameBurst)
	}

	// Stdin is read on a detached goroutine: a blocked Read must not hold
	// up shutdown when the user interrupts.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					// Keep receiving until interrupted.
					<-ctx.Done()
					return nil
				}
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				manager.SendText(line)
			}
		}
	})
	group.Go(func() error {
		<-ctx.Done()
		manager.Disconnect()
		return nil
	})

	return group.Wait()
}

func printEvent(event schemas.LiveEvent) {
	switch event.Kind {
	case schemas.EventSessionReady:
		fmt.Printf("[ready] session %s %s\n", event.SessionReady.SessionID, event.SessionReady.Status)
	case schemas.EventVisionDescription:
		fmt.Printf("[vision] %s\n", event.Vision.Description)
	case schemas.EventAudioResponse:
		fmt.Printf("[audio] %s %s\n", event.Audio.Status, event.Audio.Message)
	case schemas.EventTextResponse:
		fmt.Printf("[text] %s\n", event.Text.Answer)
		for _, source := range event.Text.Sources {
			fmt.Printf("        source: %s\n", source)
		}
	case schemas.EventError:
		fmt.Printf("[error] %s\n", event.Err.Message)
	default:
		fmt.Printf("[event] %s\n", event.Raw)
	}
}
