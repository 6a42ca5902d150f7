package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

var watchStreams = map[string]subscription.StreamID{
	"wifi":      subscription.StreamWifi,
	"bluetooth": subscription.StreamBluetooth,
}

func newWatchCmd(f *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:       "watch wifi|bluetooth",
		Short:     "Print state changes of one adapter as JSON lines",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"wifi", "bluetooth"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newStack(f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return watch(ctx, st.mgr, watchStreams[args[0]], cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "stop after this long (0 waits for a signal)")
	return cmd
}

// watch attaches a line printer to id and blocks until ctx is done. A
// failure on attach is printed and returned.
func watch(ctx context.Context, mgr *subscription.Manager, id subscription.StreamID, out io.Writer) error {
	p := &printer{out: out}
	if _, err := mgr.Attach(ctx, id, p); err != nil {
		return err
	}
	defer mgr.Detach(id)
	<-ctx.Done()
	return nil
}

// printer writes every event and failure as one JSON line.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) Success(ev watcher.StateChangeEvent) { p.line(ev) }

func (p *printer) Error(f *watcher.Failure) {
	p.line(map[string]string{"error": string(f.Kind), "message": f.Message})
}

func (p *printer) line(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, string(data))
}
