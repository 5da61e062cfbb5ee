package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/services"
)

const defaultSearchLimit = 20

// Handler exposes the HTTP surface: account endpoints, message search, and
// the websocket upgrade where sessions are born.
type Handler struct {
	log         *slog.Logger
	authService services.IAuthService
	chatService services.IChatService
	messages    repositories.IMessageRepository
	users       repositories.IUserRepository
	monitor     *observability.Monitor
	upgrader    websocket.Upgrader
	// baseCtx outlives individual requests; sessions run under it so a
	// server shutdown terminates them all.
	baseCtx              context.Context
	connectionBufferSize int
}

func NewHandler(ctx context.Context, log *slog.Logger, authService services.IAuthService,
	chatService services.IChatService, messages repositories.IMessageRepository,
	users repositories.IUserRepository, monitor *observability.Monitor,
	allowedOrigins []string, connectionBufferSize int) *Handler {
	return &Handler{
		log:         log,
		authService: authService,
		chatService: chatService,
		messages:    messages,
		users:       users,
		monitor:     monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		baseCtx:              ctx,
		connectionBufferSize: connectionBufferSize,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("GET /users", h.handleListUsers)
	mux.HandleFunc("GET /ws", h.handleWebsocket)
	return mux
}

// originChecker allows same-host requests plus an explicit allowlist. An
// empty allowlist accepts everything, for local development.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(req.Username, req.Email, req.Password)
	if err != nil {
		h.log.Warn("Registration refused", "username", req.Username, "error", err)
		writeJSON(w, statusForAuthError(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errors.ErrInvalidCredentials.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
}

type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleListUsers returns every registered account's public identity, which
// is what a client needs to pick a direct-message recipient.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identify(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errors.ErrUnauthenticated.Error()})
		return
	}

	users, err := h.users.ListUsers()
	if err != nil {
		h.log.Error("Listing users failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing users failed"})
		return
	}

	summaries := lo.Map(users, func(u repositories.User, _ int) userSummary {
		return userSummary{ID: u.ID, Username: u.Username}
	})
	writeJSON(w, http.StatusOK, summaries)
}

type searchResult struct {
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identify(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errors.ErrUnauthenticated.Error()})
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.messages.SearchMessages(r.Context(), query, r.URL.Query().Get("room"), limit)
	if err != nil {
		h.log.Error("Search failed", "query", query, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	results := lo.Map(messages, func(m domain.Message, _ int) searchResult {
		return searchResult{
			Room:      m.Room,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
	})
	writeJSON(w, http.StatusOK, results)
}

// handleWebsocket is the handshake: verify the credential first, refuse the
// connection before any session state exists, otherwise upgrade and run the
// session until it terminates.
func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		h.log.Warn("Websocket handshake refused", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errors.ErrUnauthenticated.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := NewSession(h.log, conn, identity, h.chatService, h.monitor, h.connectionBufferSize)
	session.Run(h.baseCtx)
}

// identify extracts the credential from the query string or the standard
// Authorization header and verifies it.
func (h *Handler) identify(r *http.Request) (domain.Identity, error) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return auth.VerifyIdentity(credential)
}

func statusForAuthError(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrInvalidPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
