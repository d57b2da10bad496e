package devserver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	sioclient "github.com/zishang520/socket.io-client-go/socket"
)

// Dial connects a socket.io client to a running dev server at baseURL and
// waits for the connection to be established.
func Dial(ctx context.Context, baseURL string) (*sioclient.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("url", baseURL)

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid dev server URL %q", baseURL)
	}

	opts := sioclient.DefaultOptions()
	opts.SetTransports(types.NewSet(transports.Polling, transports.WebSocket))
	opts.SetReconnection(false)

	manager := sioclient.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket("/", opts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to dev server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(15 * time.Second):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after 15s waiting for socket.io connection")
	}
}

// RequestReload asks the dev server at baseURL to reload every browser.
func RequestReload(ctx context.Context, baseURL string) error {
	io, err := Dial(ctx, baseURL)
	if err != nil {
		return err
	}
	defer io.Disconnect()

	if err := io.Emit(EventRequestReload); err != nil {
		return fmt.Errorf("sending reload request: %w", err)
	}
	// Give the transport a moment to flush before disconnecting.
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	ctxlog.FromContext(ctx).Info("Reload requested.", "url", baseURL)
	return nil
}
