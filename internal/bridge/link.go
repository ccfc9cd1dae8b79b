package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"golang.org/x/sync/errgroup"
)

// Environment handed to the renderer process so it can dial back.
const (
	EnvLinkAddr  = "CHARTBRIDGE_LINK_ADDR"
	EnvLinkToken = "CHARTBRIDGE_LINK_TOKEN"
)

type frameType string

const (
	frameHello   frameType = "hello"
	frameCommand frameType = "command"
	frameReturn  frameType = "return"
	frameEvent   frameType = "event"
	frameLoaded  frameType = "loaded"
)

// frame is one websocket text message on the controller/renderer link.
type frame struct {
	Type    frameType    `json:"type"`
	Token   string       `json:"token,omitempty"`
	Command *Command     `json:"command,omitempty"`
	Return  *ReturnValue `json:"return,omitempty"`
	Event   string       `json:"event,omitempty"`
}

// linkConn serializes frame writes on one websocket connection. server
// selects the framing side (servers write unmasked frames).
type linkConn struct {
	rw     io.ReadWriter
	server bool
	mu     sync.Mutex
}

func (c *linkConn) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("link: marshal %s frame: %w", f.Type, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server {
		err = wsutil.WriteServerText(c.rw, data)
	} else {
		err = wsutil.WriteClientText(c.rw, data)
	}
	if err != nil {
		return fmt.Errorf("link: send %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *linkConn) read() (frame, error) {
	var (
		data []byte
		err  error
	)
	if c.server {
		data, err = wsutil.ReadClientText(c.rw)
	} else {
		data, err = wsutil.ReadServerText(c.rw)
	}
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("link: decode frame: %w", err)
	}
	return f, nil
}

// acceptLink upgrades an accepted connection, checks the renderer's hello
// token and returns the server side of the link.
func acceptLink(conn net.Conn, token string, timeout time.Duration) (*linkConn, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, fmt.Errorf("link: upgrade: %w", err)
	}
	lc := &linkConn{rw: conn, server: true}
	hello, err := lc.read()
	if err != nil {
		return nil, fmt.Errorf("link: read hello: %w", err)
	}
	if hello.Type != frameHello || hello.Token != token {
		return nil, errors.New("link: renderer failed authentication")
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return lc, nil
}

// serveHostLink pumps the supervisor's channels over lc until ctx is done
// or the connection breaks. Commands flow out; returns, events and the
// loaded signal flow in.
func serveHostLink(ctx context.Context, lc *linkConn, ch Channels) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			cmd, err := ch.Commands.Get(ctx)
			if err != nil {
				return err
			}
			if err := lc.write(frame{Type: frameCommand, Command: &cmd}); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		for {
			f, err := lc.read()
			if err != nil {
				return err
			}
			switch f.Type {
			case frameReturn:
				if f.Return != nil {
					if err := ch.Returns.Put(ctx, *f.Return); err != nil {
						return err
					}
				}
			case frameEvent:
				if err := ch.Events.Put(ctx, f.Event); err != nil {
					return err
				}
			case frameLoaded:
				ch.Loaded.Set()
			default:
				slog.Debug("link host ignoring frame", "type", f.Type)
			}
		}
	})

	return g.Wait()
}

// DialLink connects the renderer to the controller at addr and
// authenticates with token.
func DialLink(ctx context.Context, addr, token string) (net.Conn, io.ReadWriter, error) {
	conn, br, _, err := ws.Dial(ctx, "ws://"+addr+"/link")
	if err != nil {
		return nil, nil, fmt.Errorf("link: dial %s: %w", addr, err)
	}
	var rw io.ReadWriter = conn
	if br != nil {
		rw = struct {
			io.Reader
			io.Writer
		}{Reader: br, Writer: conn}
	}
	lc := &linkConn{rw: rw}
	if err := lc.write(frame{Type: frameHello, Token: token}); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

// ServeRendererLink pumps the renderer's channels over conn until ctx is
// done or the connection breaks. Commands flow in; returns, events and the
// loaded signal flow out. Once ctx is done, queued returns and events are
// still written so the final exit event reaches the controller.
func ServeRendererLink(ctx context.Context, conn net.Conn, rw io.ReadWriter, ch Channels) error {
	lc := &linkConn{rw: rw}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan error, 1)
	go func() {
		readDone <- readCommands(ctx, lc, ch)
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return forward(gctx, ch.Returns, func(rv ReturnValue) error {
			return lc.write(frame{Type: frameReturn, Return: &rv})
		})
	})
	g.Go(func() error {
		return forward(gctx, ch.Events, func(msg string) error {
			return lc.write(frame{Type: frameEvent, Event: msg})
		})
	})
	g.Go(func() error {
		select {
		case <-ch.Loaded.C():
			return lc.write(frame{Type: frameLoaded})
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err := g.Wait()
	_ = conn.Close()
	if readErr := <-readDone; readErr != nil && !errors.Is(readErr, context.Canceled) {
		slog.Debug("link renderer reader stopped", "error", readErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readCommands(ctx context.Context, lc *linkConn, ch Channels) error {
	for {
		f, err := lc.read()
		if err != nil {
			return err
		}
		if f.Type != frameCommand || f.Command == nil {
			slog.Debug("link renderer ignoring frame", "type", f.Type)
			continue
		}
		if err := ch.Commands.Put(ctx, *f.Command); err != nil {
			return err
		}
	}
}

// forward sends items from q until ctx is done, then flushes what is left.
func forward[T any](ctx context.Context, q *Queue[T], send func(T) error) error {
	for {
		v, err := q.Get(ctx)
		if err != nil {
			for {
				rest, ok := q.TryGet()
				if !ok {
					return err
				}
				if sendErr := send(rest); sendErr != nil {
					return sendErr
				}
			}
		}
		if err := send(v); err != nil {
			return err
		}
	}
}
