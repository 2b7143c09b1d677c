package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/channel"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/logger"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultKeepAlive      = 20 * time.Second
	// readDeadline must exceed the keep-alive interval so a healthy pong
	// always arrives in time.
	readDeadlineSlack = 15 * time.Second
)

// ConnState names the gateway connection lifecycle states.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// Status is a point-in-time view of the gateway.
type Status struct {
	State         ConnState
	Paused        bool
	Symbols       []string
	LastMessageAt time.Time
}

// Gateway maintains one websocket session against the exchange public stream
// and feeds decoded events into the pipeline channels. Trade and top-of-book
// topics for every symbol ride a single subscription; the liquidation topic
// is added when enabled. On any failure the session is torn down and redialed
// after a fixed delay.
type Gateway struct {
	cfg appconfig.BybitSourceConfig
	ch  *channel.Channels
	log *logger.Log

	mu          sync.RWMutex
	symbols     []string
	state       ConnState
	paused      bool
	running     bool
	lastMessage time.Time
	conn        *websocket.Conn
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// books keeps last known top-of-book per symbol so depth deltas with a
	// missing side can be merged.
	books map[string]models.TopOfBook
}

// NewGateway constructs the stream gateway for the given symbols.
func NewGateway(cfg appconfig.BybitSourceConfig, ch *channel.Channels, symbols []string) *Gateway {
	return &Gateway{
		cfg:     cfg,
		ch:      ch,
		symbols: append([]string(nil), symbols...),
		state:   StateDisconnected,
		books:   make(map[string]models.TopOfBook),
		log:     logger.GetLogger(),
	}
}

// Start launches the connection loop.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("stream gateway already running")
	}
	if len(g.symbols) == 0 {
		g.mu.Unlock()
		return fmt.Errorf("no symbols configured for stream gateway")
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run(ctx)

	g.log.WithComponent("stream_gateway").WithFields(logger.Fields{
		"url":     g.cfg.WSURL,
		"symbols": strings.Join(g.symbols, ","),
	}).Info("stream gateway started")
	return nil
}

// Stop tears down the session and waits for the loop to exit.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	cancel := g.cancel
	conn := g.conn
	g.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	g.wg.Wait()
	g.log.WithComponent("stream_gateway").Info("stream gateway stopped")
}

// Pause closes the active session and suppresses reconnects until Resume.
func (g *Gateway) Pause() {
	g.mu.Lock()
	g.paused = true
	conn := g.conn
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	g.log.WithComponent("stream_gateway").Info("stream gateway paused")
}

// Resume lifts a Pause; the connection loop redials on its next cycle.
func (g *Gateway) Resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.log.WithComponent("stream_gateway").Info("stream gateway resumed")
}

// UpdateSymbols replaces the subscribed symbol set and forces a resubscribe
// by dropping the current session.
func (g *Gateway) UpdateSymbols(symbols []string) {
	g.mu.Lock()
	g.symbols = append([]string(nil), symbols...)
	conn := g.conn
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	g.log.WithComponent("stream_gateway").WithFields(logger.Fields{
		"symbols": strings.Join(symbols, ","),
	}).Info("stream symbols updated, resubscribing")
}

// Status reports the gateway's current connection state.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		State:         g.state,
		Paused:        g.paused,
		Symbols:       append([]string(nil), g.symbols...),
		LastMessageAt: g.lastMessage,
	}
}

func (g *Gateway) setState(s ConnState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *Gateway) isPaused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// topics builds the subscription arguments for the current symbol set.
func (g *Gateway) topics() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	topics := make([]string, 0, len(g.symbols)*3)
	for _, symbol := range g.symbols {
		sym := strings.ToUpper(strings.TrimSpace(symbol))
		if sym == "" {
			continue
		}
		topics = append(topics, "publicTrade."+sym, "orderbook.1."+sym)
		if g.cfg.Liquidations {
			topics = append(topics, "allLiquidation."+sym)
		}
	}
	return topics
}

func (g *Gateway) run(ctx context.Context) {
	defer g.wg.Done()
	defer g.setState(StateDisconnected)

	log := g.log.WithComponent("stream_gateway")
	reconnectDelay := g.cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if g.isPaused() {
			g.setState(StateDisconnected)
			if waitForReconnect(ctx, reconnectDelay) {
				return
			}
			continue
		}

		g.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.cfg.WSURL, nil)
		if err != nil {
			g.setState(StateDisconnected)
			log.WithError(err).WithFields(logger.Fields{"url": g.cfg.WSURL}).Warn("failed to connect to exchange websocket")
			if waitForReconnect(ctx, reconnectDelay) {
				return
			}
			continue
		}

		if err := subscribe(conn, g.topics()); err != nil {
			log.WithError(err).Warn("failed to subscribe to stream topics")
			_ = conn.Close()
			g.setState(StateDisconnected)
			if waitForReconnect(ctx, reconnectDelay) {
				return
			}
			continue
		}

		g.mu.Lock()
		g.conn = conn
		g.state = StateConnected
		g.mu.Unlock()
		log.WithFields(logger.Fields{"topics": len(g.topics())}).Info("exchange websocket connected")

		keepAlive := g.cfg.KeepAlive
		if keepAlive <= 0 {
			keepAlive = defaultKeepAlive
		}
		_ = conn.SetReadDeadline(time.Now().Add(keepAlive + readDeadlineSlack))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(keepAlive + readDeadlineSlack))
		})
		pingCancel := startPingLoop(ctx, conn, keepAlive, log)

		g.readLoop(ctx, conn, log)

		pingCancel()
		_ = conn.Close()
		g.mu.Lock()
		g.conn = nil
		g.state = StateDisconnected
		g.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if waitForReconnect(ctx, reconnectDelay) {
			return
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, log *logger.Entry) {
	for {
		if ctx.Err() != nil || g.isPaused() {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !g.isPaused() {
				log.WithError(err).Warn("websocket read failed, reconnecting")
			}
			return
		}

		g.mu.Lock()
		g.lastMessage = time.Now()
		g.mu.Unlock()

		// Malformed messages are logged and dropped; one bad payload never
		// costs the connection.
		if err := g.handleMessage(ctx, msg); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"payload_bytes": len(msg),
			}).Warn("dropping malformed stream message")
		}
	}
}

func subscribe(conn *websocket.Conn, topics []string) error {
	req := struct {
		Op    string   `json:"op"`
		Args  []string `json:"args"`
		ReqID string   `json:"req_id"`
	}{
		Op:    "subscribe",
		Args:  topics,
		ReqID: fmt.Sprintf("%d", time.Now().UnixNano()),
	}
	return conn.WriteJSON(req)
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
