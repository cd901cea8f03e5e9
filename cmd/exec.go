// File: cmd/exec.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/observability"
	"github.com/xkilldash9x/pilot/internal/service"
)

// newExecCmd creates the `exec` command, which runs a single model turn.
func newExecCmd() *cobra.Command {
	var (
		stream     bool
		showEvents bool
	)

	execCmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Executes the first directive of one model turn and prints the result markup",
		Long: `Reads a model turn from the given file, or from stdin when no file is given,
executes its first perform_action directive and prints the perform_action_result
markup to stdout. With --stream, stdin is consumed line by line and the directive
runs as soon as it is complete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			recorder := &notify.Recorder{}
			components, err := newComponentFactory().Create(ctx, cfg, recorder, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			runtime := components.NewRuntime()
			var result *service.TurnResult
			if stream {
				result, err = runtime.Consume(ctx, readChunks(ctx, in))
			} else {
				var raw []byte
				if raw, err = io.ReadAll(in); err != nil {
					return fmt.Errorf("failed to read turn: %w", err)
				}
				result, err = runtime.HandleText(ctx, string(raw))
			}
			if errors.Is(err, service.ErrNoDirective) || (err == nil && result.Directive == nil) {
				logger.Info("Turn carried no directive; nothing was executed.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Markup)
			if showEvents {
				return writeEvents(cmd.ErrOrStderr(), recorder)
			}
			return nil
		},
	}

	execCmd.Flags().BoolVar(&stream, "stream", false, "Consume the turn as a stream, one line per chunk.")
	execCmd.Flags().BoolVar(&showEvents, "events", false, "Print the notifications emitted during the turn to stderr as JSON lines.")
	execCmd.Flags().Bool("desktop", false, "Enable the desktop backend. (Overrides config/env)")
	execCmd.Flags().String("container", "", "Desktop container name or id. (Overrides config/env)")
	execCmd.Flags().Bool("headless", true, "Run Chrome headless. (Overrides config/env)")
	execCmd.Flags().String("remote", "", "DevTools websocket URL of an existing browser. (Overrides config/env)")

	return execCmd
}

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open turn file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readChunks feeds in to a channel one line at a time, keeping the line
// breaks, and closes it at EOF or when ctx is done.
func readChunks(ctx context.Context, in io.Reader) <-chan string {
	chunks := make(chan string)
	go func() {
		defer close(chunks)
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case chunks <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					observability.GetLogger().Warn("Turn stream read failed.", zap.Error(err))
				}
				return
			}
		}
	}()
	return chunks
}

func writeEvents(w io.Writer, recorder *notify.Recorder) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for _, n := range recorder.Events() {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("failed to encode notification: %w", err)
		}
	}
	return nil
}
