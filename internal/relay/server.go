package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pqchat/internal/domain"
)

// Status frames sent by the server.
const (
	StatusPrefix       = "STATUS:"
	StatusUnauthorized = "Unauthorized"
)

// socket is one connected client. gorilla connections allow a single
// concurrent writer, so writes are serialized.
type socket struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *socket) write(messageType int, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// Server is the in-memory development server. It serves the key directory,
// presence, history and the live chat socket. It only ever holds public keys
// and ciphertext.
//
// Authentication is out of scope: the bearer token is taken as the user id.
type Server struct {
	mu      sync.RWMutex
	keys    map[domain.UserID]domain.KeysDocument
	history []domain.RemoteMessage
	sockets map[domain.UserID]*socket

	upgrader websocket.Upgrader
	router   *mux.Router
	log      *zap.Logger
}

// NewServer returns an empty Server. A nil logger disables logging.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		keys:    make(map[domain.UserID]domain.KeysDocument),
		sockets: make(map[domain.UserID]*socket),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.Named("relay"),
	}

	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.HandleFunc("/peer/{id}/keys", s.handlePublishKeys).Methods(http.MethodPost)
	r.HandleFunc("/peer/{id}/keys", s.handleGetKeys).Methods(http.MethodGet)
	r.HandleFunc("/peer/{id}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/messages/{peer}", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/ws/chat", s.handleSocket)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Close disconnects every live socket with a going-away code.
func (s *Server) Close() {
	s.mu.Lock()
	socks := s.sockets
	s.sockets = make(map[domain.UserID]*socket)
	s.mu.Unlock()

	for _, sock := range socks {
		_ = sock.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		_ = sock.conn.Close()
	}
}

// Online reports whether user has a live socket.
func (s *Server) Online(user domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sockets[user]
	return ok
}

// Kick closes user's socket with code, as a server restart or network drop would.
func (s *Server) Kick(user domain.UserID, code int) {
	s.mu.Lock()
	sock, ok := s.sockets[user]
	delete(s.sockets, user)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = sock.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	_ = sock.conn.Close()
}

func (s *Server) handlePublishKeys(w http.ResponseWriter, r *http.Request) {
	id := domain.UserID(mux.Vars(r)["id"])
	if caller := userFromRequest(r); caller != id {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	defer r.Body.Close()
	var doc domain.KeysDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc.KyberPublicKey == "" || doc.DilithiumPublicKey == "" {
		http.Error(w, "both public keys are required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.keys[id] = doc
	s.mu.Unlock()
	s.log.Info("keys published", zap.String("user", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	id := domain.UserID(mux.Vars(r)["id"])
	s.mu.RLock()
	doc, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.UserID(mux.Vars(r)["id"])
	writeJSON(w, domain.PresenceDocument{IsOnline: s.Online(id)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	caller := userFromRequest(r)
	if caller == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	peer := domain.UserID(mux.Vars(r)["peer"])

	s.mu.RLock()
	out := make([]domain.RemoteMessage, 0)
	for _, m := range s.history {
		if (m.SenderID == caller && m.ReceiverID == peer) || (m.SenderID == peer && m.ReceiverID == caller) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	writeJSON(w, out)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	sock := &socket{conn: conn}

	user := userFromRequest(r)
	if user == "" {
		_ = sock.write(websocket.TextMessage, []byte(StatusPrefix+StatusUnauthorized))
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	prev := s.sockets[user]
	s.sockets[user] = sock
	s.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
	s.log.Info("client connected", zap.String("user", user.String()))
	_ = sock.write(websocket.TextMessage, []byte(StatusPrefix+"Connected as "+user.String()))

	defer func() {
		s.mu.Lock()
		if s.sockets[user] == sock {
			delete(s.sockets, user)
		}
		s.mu.Unlock()
		_ = conn.Close()
		s.log.Info("client disconnected", zap.String("user", user.String()))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env domain.WireEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != domain.EnvelopeTypeEncrypted || env.To == "" {
			_ = sock.write(websocket.TextMessage, []byte(StatusPrefix+"Unsupported frame"))
			continue
		}
		s.route(user, env)
	}
}

// route records env in history and forwards it to the recipient if connected.
func (s *Server) route(from domain.UserID, env domain.WireEnvelope) {
	env.From = from

	s.mu.Lock()
	s.history = append(s.history, domain.RemoteMessage{
		ID:               uuid.NewString(),
		SenderID:         from,
		ReceiverID:       env.To,
		MessageType:      domain.MessageTypeEncrypted,
		Ciphertext:       env.Ciphertext,
		EncryptedMessage: env.EncryptedMessage,
		IV:               env.IV,
		Signature:        env.Signature,
		Timestamp:        time.Now().UTC(),
	})
	dst := s.sockets[env.To]
	s.mu.Unlock()

	if dst == nil {
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := dst.write(websocket.TextMessage, b); err != nil {
		s.log.Warn("forward failed", zap.String("to", env.To.String()), zap.Error(err))
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// userFromRequest returns the bearer token or ?token= value.
func userFromRequest(r *http.Request) domain.UserID {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return domain.UserID(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	}
	return domain.UserID(r.URL.Query().Get("token"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
