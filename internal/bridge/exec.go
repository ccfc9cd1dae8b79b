package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dgnsrekt/chartbridge/internal/netutil"
	"github.com/google/uuid"
)

// ExecConfig describes how to launch the renderer binary.
type ExecConfig struct {
	Path          string
	Args          []string
	Env           []string
	AcceptTimeout time.Duration
	Stdout        io.Writer
	Stderr        io.Writer
}

// ExecProcess is a renderer running as a child OS process. Its channels are
// bridged to the child over a loopback websocket the child dials back to.
type ExecProcess struct {
	cfg ExecConfig
	ch  Channels

	mu     sync.Mutex
	cmd    *exec.Cmd
	ln     *net.TCPListener
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExecProcess returns a Spawner that launches cfg.Path per generation.
func NewExecProcess(cfg ExecConfig) Spawner {
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = 10 * time.Second
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return func(ch Channels) Process {
		return &ExecProcess{cfg: cfg, ch: ch, done: make(chan struct{})}
	}
}

func (p *ExecProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return errors.New("renderer process already started")
	}
	if p.cfg.Path == "" {
		return errors.New("renderer path is required")
	}

	ln, err := netutil.ListenLoopback()
	if err != nil {
		return err
	}
	token := uuid.NewString()

	cmd := exec.Command(p.cfg.Path, p.cfg.Args...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Env = append(cmd.Env, EnvLinkAddr+"="+ln.Addr().String(), EnvLinkToken+"="+token)
	cmd.Stdout = p.cfg.Stdout
	cmd.Stderr = p.cfg.Stderr
	if err := cmd.Start(); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start renderer %s: %w", p.cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cmd, p.ln, p.cancel = cmd, ln, cancel
	slog.Info("renderer process started", "pid", cmd.Process.Pid, "link_addr", ln.Addr().String())

	go p.wait()
	go p.accept(ctx, token)
	return nil
}

func (p *ExecProcess) wait() {
	err := p.cmd.Wait()
	p.cancel()
	_ = p.ln.Close()
	if err != nil {
		slog.Info("renderer process exited", "pid", p.cmd.Process.Pid, "error", err)
	} else {
		slog.Info("renderer process exited", "pid", p.cmd.Process.Pid)
	}
	close(p.done)
}

func (p *ExecProcess) accept(ctx context.Context, token string) {
	if err := p.ln.SetDeadline(time.Now().Add(p.cfg.AcceptTimeout)); err != nil {
		slog.Error("renderer link deadline failed", "error", err)
		return
	}
	conn, err := p.ln.Accept()
	if err != nil {
		slog.Error("renderer link accept failed", "error", err)
		return
	}
	_ = p.ln.Close()
	defer conn.Close()

	lc, err := acceptLink(conn, token, p.cfg.AcceptTimeout)
	if err != nil {
		slog.Error("renderer link handshake failed", "error", err)
		return
	}
	slog.Debug("renderer link established", "remote", conn.RemoteAddr().String())

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	if err := serveHostLink(ctx, lc, p.ch); err != nil && ctx.Err() == nil {
		slog.Warn("renderer link closed", "error", err)
	}
}

func (p *ExecProcess) Done() <-chan struct{} { return p.done }

func (p *ExecProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *ExecProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *ExecProcess) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// RunRenderer is the renderer side of ExecProcess. It dials the controller
// named by the link environment, then runs a RendererLoop over the link
// until the loop stops, ctx is done or the controller goes away. Replies and
// events queued when the loop stops are flushed before it returns.
func RunRenderer(ctx context.Context, newEngine func(emit func(string)) Engine, opts ...RendererOption) error {
	addr, token := os.Getenv(EnvLinkAddr), os.Getenv(EnvLinkToken)
	if addr == "" || token == "" {
		return fmt.Errorf("%s and %s must be set by the controller", EnvLinkAddr, EnvLinkToken)
	}

	conn, rw, err := DialLink(ctx, addr, token)
	if err != nil {
		return err
	}

	ch := NewChannels(0)
	loop := NewRendererLoop(newEngine(emitter(ch.Events)), ch, opts...)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	linkCtx, stopLink := context.WithCancel(context.Background())
	defer stopLink()

	linkDone := make(chan error, 1)
	go func() {
		err := ServeRendererLink(linkCtx, conn, rw, ch)
		stopLoop()
		linkDone <- err
	}()

	runErr := loop.Run(loopCtx)
	stopLink()
	return errors.Join(runErr, <-linkDone)
}
