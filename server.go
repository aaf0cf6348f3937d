package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/pkg/browser"
	"github.com/xplshn/tracerr2"
)

type state int32

const (
	stateStarting state = iota
	stateServing
)

func (s state) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateServing:
		return "serving"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Launcher binds the listener, points the browser at it and serves the
// configured root until the process is interrupted.
type Launcher struct {
	cfg     *Config
	logger  *slog.Logger
	out     io.Writer
	handler http.Handler
	openURL func(url string) error
	state   atomic.Int32
}

func NewLauncher(cfg *Config, logger *slog.Logger, out io.Writer) (*Launcher, error) {
	h, err := newFileHandler(cfg, logger)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Launcher{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		handler: h,
		openURL: browser.OpenURL,
	}, nil
}

func (l *Launcher) currentState() state {
	return state(l.state.Load())
}

func (l *Launcher) setState(s state) {
	l.state.Store(int32(s))
	l.logger.Debug("launcher state changed", "state", s)
}

func listen(cfg *Config) (net.Listener, error) {
	return net.Listen("tcp", cfg.Addr())
}

func (l *Launcher) Run(ctx context.Context) error {
	l.setState(stateStarting)

	ln, err := listen(l.cfg)
	if err != nil {
		return tracerr.Wrapf(err, "failed to listen on %s", l.cfg.Addr())
	}

	// Port 0 lets the kernel pick; the URL must name the real port.
	url := siteURL(ln.Addr().(*net.TCPAddr).Port)
	l.logger.Info("listening", "addr", ln.Addr().String(), "root", l.cfg.Root)

	l.announce(url)

	return l.serve(ctx, ln)
}

// announce prints the startup lines around a best-effort browser launch.
func (l *Launcher) announce(url string) {
	fmt.Fprintf(l.out, "Opening the audio editor at %s\n", url)
	if l.cfg.OpenBrowser {
		if err := l.openURL(url); err != nil {
			l.logger.Warn("failed to open browser", "url", url, "error", err)
		}
	}
	fmt.Fprintln(l.out, "Server running... (press Ctrl+C to stop)")
}

func (l *Launcher) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     l.handler,
		ErrorLog:    slog.NewLogLogger(l.logger.Handler(), slog.LevelError),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// No shutdown protocol: cancelling ctx drops the listener and in-flight
	// connections die with the process.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.setState(stateServing)
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	return tracerr.Wrapf(err, "server stopped")
}
