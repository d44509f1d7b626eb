// Package server owns the gateway lifecycle: accepting connections, the
// liveness heartbeat, and orderly teardown on disconnect.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vedant-vijay/TaskSync/internal/router"
	"github.com/vedant-vijay/TaskSync/internal/server/middleware"
	"github.com/vedant-vijay/TaskSync/pkg/config"
	"github.com/vedant-vijay/TaskSync/pkg/directory"
	"github.com/vedant-vijay/TaskSync/pkg/protocol"
	"github.com/vedant-vijay/TaskSync/pkg/state"
	"github.com/vedant-vijay/TaskSync/pkg/state/registry"
	"github.com/vedant-vijay/TaskSync/pkg/transport"
)

// liveConn pairs a transport connection with its gateway session for the
// heartbeat sweep and shutdown.
type liveConn struct {
	conn *transport.Connection
	sess *state.Session
	ip   string
}

type App struct {
	logger      *slog.Logger
	registry    state.Registry
	eventRouter *router.EventRouter
	config      *config.Config
	wg          sync.WaitGroup
	http        *http.Server

	liveMu sync.Mutex
	live   map[uuid.UUID]*liveConn

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store directory.Store, verifier directory.TokenVerifier) *App {
	reg := registry.NewInMemoryRegistry(logger)
	presence := state.NewPresence()
	eventRouter := router.NewEventRouter(logger, reg, presence, store, verifier)

	app := &App{
		logger:      logger,
		registry:    reg,
		eventRouter: eventRouter,
		config:      cfg,
		live:        make(map[uuid.UUID]*liveConn),
		ctx:         rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				app.connectionsForIP,
				cfg.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Gateway starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	go a.heartbeat()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	var ip string
	if reqMeta != nil {
		ip = reqMeta.IP
	}
	connLogger := a.logger.With(slog.String("remoteAddr", ip))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{PingTimeout: a.config.Transport.PingTimeout},
		a.logger,
	)
	sess := state.NewSession(conn.ID(), conn)

	a.liveMu.Lock()
	a.live[conn.ID()] = &liveConn{conn: conn, sess: sess, ip: ip}
	a.liveMu.Unlock()

	conn.SetOnMessageHandler(func(ctx context.Context, _ uuid.UUID, msg []byte) {
		a.eventRouter.Dispatch(ctx, sess, msg)
	})
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.liveMu.Lock()
		delete(a.live, id)
		a.liveMu.Unlock()
		a.eventRouter.HandleDisconnect(sess)
		connLogger.Info("Connection torn down",
			slog.String("connID", id.String()),
			slog.Any("reason", err),
		)
	})

	conn.Run()
	conn.Send(protocol.MustEncode(protocol.TypeConnectionEstablished, protocol.ConnectionEstablishedPayload{
		Message:   "Connected to TaskSync gateway. Please authenticate.",
		Timestamp: protocol.Timestamp(),
	}))

	connLogger.Info("Connection established", slog.String("connID", conn.ID().String()))
	<-conn.Done()
}

// heartbeat pings every open connection on one gateway-wide ticker. A peer
// that cannot answer within the ping timeout is forcibly terminated.
func (a *App) heartbeat() {
	interval := a.config.Heartbeat.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.liveMu.Lock()
			conns := make([]*transport.Connection, 0, len(a.live))
			for _, lc := range a.live {
				conns = append(conns, lc.conn)
			}
			a.liveMu.Unlock()

			for _, conn := range conns {
				go func(c *transport.Connection) {
					if err := c.Ping(a.ctx); err != nil {
						c.Close(fmt.Errorf("heartbeat failed: %w", err))
					}
				}(conn)
			}
		}
	}
}

func (a *App) connectionsForIP(ip string) int {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	count := 0
	for _, lc := range a.live {
		if lc.ip == ip {
			count++
		}
	}
	return count
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	a.liveMu.Lock()
	conns := make([]*transport.Connection, 0, len(a.live))
	for _, lc := range a.live {
		conns = append(conns, lc.conn)
	}
	a.liveMu.Unlock()
	for _, conn := range conns {
		conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()

	stats := a.registry.Stats()
	a.logger.Info("Gateway shut down gracefully.",
		slog.Int("remainingConnections", stats.ActiveConnections),
	)
	return nil
}
