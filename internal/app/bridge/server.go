package bridge

import (
	"MacroRecorder/internal/adapter/storage"
	"MacroRecorder/internal/app/session"
	"MacroRecorder/internal/config"
	"MacroRecorder/internal/service/events"
	"MacroRecorder/internal/service/hotkey"
	"MacroRecorder/internal/service/macro"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientQueue  = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	maxCommandSz = 64 << 10
)

// Session: команды контроллера, доступные UI.
type Session interface {
	State() session.State
	StartRecording() error
	StopRecording() (macro.Macro, error)
	Play(repeat int) error
	StopPlayback() bool
	SaveMacro(ctx context.Context, name string) error
	LoadMacro(ctx context.Context, name string) error
	Macros(ctx context.Context) ([]storage.Entry, error)
	CurrentMacro() macro.Macro
	DeleteEvents(indexes ...int) (int, error)
	RequestRebind(a hotkey.Action) error
	CancelRebind() bool
	Bindings() hotkey.Bindings
}

var _ events.Notifier = (*Server)(nil)

// Server: websocket-мост между ядром и внешним UI.
type Server struct {
	cfg           config.BridgeConfig
	sess          Session
	journal       *events.Journal
	defaultRepeat int
	srv           *http.Server
	upgrader      websocket.Upgrader
	logger        *zap.SugaredLogger
	running       atomic.Bool

	mu      sync.RWMutex
	clients map[string]*client
	dropped atomic.Int64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func NewServer(cfg config.BridgeConfig, sess Session, journal *events.Journal, defaultRepeat int, logger *zap.SugaredLogger) *Server {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:3001"
	}
	s := &Server{
		cfg:           cfg,
		sess:          sess,
		journal:       journal,
		defaultRepeat: defaultRepeat,
		logger:        logger,
		clients:       map[string]*client{},
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			// слушаем только локальный адрес; доступ ограничивает токен
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.srv = &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler: маршруты моста (используется и в тестах через httptest).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		s.logger.Infow("Bridge listening", "addr", s.srv.Addr, "auth", s.cfg.AuthToken != "")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("Bridge stopped with error", "error", err)
		} else {
			s.logger.Infow("Bridge stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.closeClients()
	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("bridge shutdown timeout"))
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		return s.srv.Close()
	}
	return nil
}

func (s *Server) Addr() string { return s.cfg.BindAddr }

// Clients: число подключённых клиентов.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped: сколько уведомлений не влезло в очереди медленных клиентов.
func (s *Server) Dropped() int64 { return s.dropped.Load() }

// Notify рассылает уведомление всем клиентам без блокировки.
func (s *Server) Notify(n events.Notification) {
	data, err := json.Marshal(Envelope{Kind: "notification", Notification: &n})
	if err != nil {
		s.logger.Warnw("Failed to marshal notification", "type", n.Type, "error", err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, data)
	}
}

func (s *Server) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		s.dropped.Add(1)
		s.logger.Debugw("Client queue full, message dropped", "client", c.id)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed; use GET", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	view := stateView{
		State:    s.sess.State().String(),
		Macro:    viewMacro(s.sess.CurrentMacro()),
		Bindings: viewBindings(s.sess.Bindings()),
		Journal:  []events.Notification{},
		Clients:  s.Clients(),
	}
	if s.journal != nil {
		view.Journal = s.journal.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		s.logger.Warnw("Failed to write state", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientQueue), done: make(chan struct{})}

	s.mu.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Infow("Bridge client connected", "client", c.id, "remote", r.RemoteAddr, "clients", total)

	if hello, err := json.Marshal(Envelope{Kind: "hello", Client: c.id}); err == nil {
		s.enqueue(c, hello)
	}
	go s.writeLoop(c)
	s.readLoop(r.Context(), c)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()
	s.logger.Infow("Bridge client disconnected", "client", c.id)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxCommandSz)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugw("Client read failed", "client", c.id, "error", err)
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.reply(c, Reply{OK: false, Error: "bad command: " + err.Error()})
				continue
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.reply(c, s.execute(context.WithoutCancel(ctx), cmd))
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debugw("Client write failed", "client", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) reply(c *client, r Reply) {
	data, err := json.Marshal(Envelope{Kind: "reply", Reply: &r})
	if err != nil {
		s.logger.Warnw("Failed to marshal reply", "cmd", r.Cmd, "error", err)
		return
	}
	s.enqueue(c, data)
}

// execute выполняет команду и формирует ответ с актуальным состоянием.
func (s *Server) execute(ctx context.Context, cmd Command) Reply {
	r := Reply{ID: cmd.ID, Cmd: cmd.Cmd}
	data, err := s.dispatch(ctx, cmd)
	if err != nil {
		r.Error = err.Error()
		s.logger.Infow("Bridge command failed", "cmd", cmd.Cmd, "error", err)
	} else {
		r.OK = true
		r.Data = data
	}
	r.State = s.sess.State().String()
	return r
}

func (s *Server) dispatch(ctx context.Context, cmd Command) (any, error) {
	switch strings.ToLower(strings.TrimSpace(cmd.Cmd)) {
	case cmdState:
		return nil, nil
	case cmdStartRecord:
		return nil, s.sess.StartRecording()
	case cmdStopRecord:
		m, err := s.sess.StopRecording()
		if err != nil {
			return nil, err
		}
		return viewMacro(m), nil
	case cmdPlay:
		repeat := s.defaultRepeat
		if cmd.Repeat != nil {
			repeat = *cmd.Repeat
		}
		if repeat < 0 {
			return nil, fmt.Errorf("repeat must be >= 0, got %d", repeat)
		}
		return nil, s.sess.Play(repeat)
	case cmdStopPlay:
		return map[string]bool{"stopped": s.sess.StopPlayback()}, nil
	case cmdSave:
		return nil, s.sess.SaveMacro(ctx, cmd.Name)
	case cmdLoad:
		if strings.TrimSpace(cmd.Name) == "" {
			return nil, errors.New("load: name is required")
		}
		if err := s.sess.LoadMacro(ctx, cmd.Name); err != nil {
			return nil, err
		}
		return viewMacro(s.sess.CurrentMacro()), nil
	case cmdList:
		return s.sess.Macros(ctx)
	case cmdMacro:
		return viewMacro(s.sess.CurrentMacro()), nil
	case cmdDeleteEvents:
		n, err := s.sess.DeleteEvents(cmd.Indexes...)
		if err != nil {
			return nil, err
		}
		return map[string]int{"deleted": n}, nil
	case cmdRebind:
		a, err := hotkey.ParseAction(cmd.Action)
		if err != nil {
			return nil, err
		}
		return nil, s.sess.RequestRebind(a)
	case cmdCancelRebind:
		return map[string]bool{"cancelled": s.sess.CancelRebind()}, nil
	case cmdBindings:
		return viewBindings(s.sess.Bindings()), nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd.Cmd)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(time.Second))
		c.close()
	}
}
