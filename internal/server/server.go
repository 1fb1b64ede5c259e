package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bodul/waifu100/internal/config"
	"github.com/bodul/waifu100/internal/editor"
	"github.com/bodul/waifu100/internal/share"
)

const (
	maxJSONBody   = 1 << 20
	limiterIdle   = 5 * time.Minute
	sendBuffer    = 32
	imageMaxAge   = "public, max-age=86400"
	emptyGridText = "No characters provided. Add some characters to get judged!"
)

// ShareStore persists shared grids.
type ShareStore interface {
	Create(ctx context.Context, req share.CreateRequest) (string, error)
	Get(ctx context.Context, id string) (*share.Record, error)
	Image(ctx context.Context, id string) ([]byte, error)
	UpdateVerdict(ctx context.Context, id string, v *editor.Verdict) error
	UpdateFeedback(ctx context.Context, id, feedback string) error
	Ping(ctx context.Context) error
}

// FeedSource serves the community feed.
type FeedSource interface {
	Feed(ctx context.Context) ([]share.FeedItem, error)
	Invalidate()
}

// Analyzer judges a list of character names.
type Analyzer interface {
	Analyze(ctx context.Context, names []string) (*editor.Verdict, error)
}

// Deps are the server's collaborators. Any of them may be nil; the matching
// endpoints then answer 503.
type Deps struct {
	Shares   ShareStore
	Feed     FeedSource
	Analyzer Analyzer
	Logger   *zap.Logger
}

// Server is the main HTTP server.
type Server struct {
	mux        *http.ServeMux
	sessions   *Registry
	shares     ShareStore
	feed       FeedSource
	analyzer   Analyzer
	sse        *Broadcaster
	upgrader   websocket.Upgrader
	shareRL    *RateLimiter
	analyzeRL  *RateLimiter
	eventRL    *RateLimiter
	maxUpload  int64
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:        http.NewServeMux(),
		shares:     deps.Shares,
		feed:       deps.Feed,
		analyzer:   deps.Analyzer,
		sse:        NewBroadcaster(logger),
		shareRL:    NewRateLimiter(cfg.Limits.SharePerMinute, time.Minute),
		analyzeRL:  NewRateLimiter(cfg.Limits.AnalyzePerMinute, time.Minute),
		eventRL:    NewRateLimiter(cfg.Limits.EventsPerSecond, time.Second),
		maxUpload:  cfg.Limits.MaxUploadBytes,
		sessionTTL: cfg.Server.SessionTTL,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.sessions = NewRegistry(func(id string, st editor.State) {
		s.sse.Broadcast(id, stateMessage(st))
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	// Editing sessions
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/document", s.handleGetDocument)
	s.mux.HandleFunc("POST /api/sessions/{id}/load", s.handleLoad)
	s.mux.HandleFunc("POST /api/sessions/{id}/events", s.handleEvent)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebSocket)

	// Sharing
	s.mux.HandleFunc("POST /api/share", s.handleCreateShare)
	s.mux.HandleFunc("PATCH /api/share/verdict", s.handleUpdateVerdict)
	s.mux.HandleFunc("GET /api/share/{id}", s.handleGetShare)
	s.mux.HandleFunc("GET /api/share/{id}/image", s.handleShareImage)
	s.mux.HandleFunc("GET /api/community", s.handleCommunity)

	// Analysis
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'")
	s.mux.ServeHTTP(w, r)
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *Registry { return s.sessions }

// Janitor drops idle sessions and rate-limiter entries every interval until
// ctx is done.
func (s *Server) Janitor(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	for _, id := range s.sessions.Sweep(s.sessionTTL) {
		n := s.sse.CloseTopic(id)
		s.logger.Info("session expired", zap.String("session", id), zap.Int("subscribers", n))
	}
	for _, rl := range []*RateLimiter{s.shareRL, s.analyzeRL, s.eventRL} {
		rl.Sweep(limiterIdle)
	}
}

// --- Session handlers ---

// POST /api/sessions: start a session, optionally loading a document or a share.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document json.RawMessage `json:"document"`
		ShareID  string          `json:"shareId"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var load func(ed *editor.Editor) (*editor.Decoded, error)
	switch {
	case req.ShareID != "":
		rec, ok := s.lookupShare(w, r, req.ShareID)
		if !ok {
			return
		}
		load = func(ed *editor.Editor) (*editor.Decoded, error) {
			return ed.LoadRecord(rec.Grid, rec.DocumentMeta())
		}
	case len(req.Document) > 0:
		input := rawText(req.Document)
		load = func(ed *editor.Editor) (*editor.Decoded, error) {
			return ed.Load(input)
		}
	}

	sess := s.sessions.Create()
	resp := struct {
		ID     string       `json:"id"`
		State  editor.State `json:"state"`
		Notice string       `json:"notice,omitempty"`
	}{ID: sess.ID}

	var err error
	resp.State, err = sess.Do(func(ed *editor.Editor) error {
		if load == nil {
			return nil
		}
		d, err := load(ed)
		if err == nil {
			resp.Notice = loadNotice(d)
		}
		return err
	})
	if err != nil {
		s.sessions.Delete(sess.ID)
		editorError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GET /api/sessions/{id}: current session state.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*Session
		Revision uint64       `json:"revision"`
		State    editor.State `json:"state"`
	}{sess, sess.Revision(), sess.State()})
}

// GET /api/sessions/{id}/document: the serialized grid, as JSON or ?format=base64.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	doc := sess.Document()
	if r.URL.Query().Get("format") == "base64" {
		data, _ := json.Marshal(doc)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, base64.StdEncoding.EncodeToString(data))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="waifu100.json"`)
	writeJSON(w, http.StatusOK, doc)
}

// POST /api/sessions/{id}/load: replace the grid with pasted or uploaded text.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	input, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	var d *editor.Decoded
	st, err := sess.Do(func(ed *editor.Editor) error {
		var err error
		d, err = ed.Load(input)
		return err
	})
	if err != nil {
		editorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":  d.Loaded,
		"skipped": d.Skipped,
		"notice":  loadNotice(d),
		"state":   st,
	})
}

// POST /api/sessions/{id}/events: apply one input event.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	if !s.eventRL.Allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	var ev Event
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		jsonError(w, "invalid event", http.StatusBadRequest)
		return
	}

	var res result
	st, err := sess.Do(func(ed *editor.Editor) error {
		var err error
		res, err = apply(ed, ev)
		return err
	})
	if err != nil {
		editorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message
		State editor.State `json:"state"`
	}{Message{Type: "result", Event: ev.Type, Outcome: res.Outcome, Notice: res.Notice}, st})
}

// GET /api/sessions/{id}/events: SSE stream of state snapshots.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	s.sse.ServeSSE(w, r, sess.ID, stateMessage(sess.State()))
}

// GET /api/sessions/{id}/ws: drive a session over a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		ws:      ws,
		server:  s,
		session: sess,
		key:     clientIP(r),
		send:    make(chan []byte, sendBuffer),
		sub:     s.sse.Register(sess.ID),
	}
	c.send <- stateMessage(sess.State())
	c.handle()
}

// --- Share handlers ---

// POST /api/share: store a grid, from the request or from a live session.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	if !s.shareRL.Allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	if s.shares == nil {
		jsonError(w, "sharing is not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Grid        []editor.Entry  `json:"grid"`
		CustomTitle string          `json:"customTitle"`
		Image       string          `json:"image"`
		Verdict     *editor.Verdict `json:"verdict"`
		Publish     bool            `json:"publish"`
		SessionID   string          `json:"sessionId"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid grid data", http.StatusBadRequest)
		return
	}
	if req.SessionID != "" {
		sess := s.sessions.Get(req.SessionID)
		if sess == nil {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		doc := sess.Document()
		req.Grid = doc.Grid
		if req.CustomTitle == "" {
			req.CustomTitle = doc.Title
		}
		if req.Verdict == nil {
			req.Verdict = doc.Verdict
		}
	}

	id, err := s.shares.Create(r.Context(), share.CreateRequest{
		Grid:    req.Grid,
		Title:   req.CustomTitle,
		Image:   req.Image,
		Verdict: req.Verdict,
		Publish: req.Publish,
	})
	if errors.Is(err, share.ErrEmptyGrid) {
		jsonError(w, "invalid grid data", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("share save failed", zap.Error(err))
		jsonError(w, "failed to save share", http.StatusInternalServerError)
		return
	}
	if req.Publish && s.feed != nil {
		s.feed.Invalidate()
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "url": "/view/" + id})
}

// GET /api/share/{id}: a stored share.
func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupShare(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/share/{id}/image: the PNG captured when the grid was shared.
func (s *Server) handleShareImage(w http.ResponseWriter, r *http.Request) {
	if s.shares == nil {
		jsonError(w, "sharing is not configured", http.StatusServiceUnavailable)
		return
	}
	data, err := s.shares.Image(r.Context(), r.PathValue("id"))
	if err != nil {
		s.shareError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", imageMaxAge)
	w.Write(data)
}

// PATCH /api/share/verdict: attach a verdict, or feedback on it, to a share.
func (s *Server) handleUpdateVerdict(w http.ResponseWriter, r *http.Request) {
	if s.shares == nil {
		jsonError(w, "sharing is not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		ShareID  string          `json:"shareId"`
		Verdict  *editor.Verdict `json:"verdict"`
		Feedback *string         `json:"feedback"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ShareID == "" || (req.Verdict == nil && req.Feedback == nil) {
		jsonError(w, "shareId and verdict are required", http.StatusBadRequest)
		return
	}

	var err error
	if req.Verdict != nil {
		err = s.shares.UpdateVerdict(r.Context(), req.ShareID, req.Verdict)
	}
	if err == nil && req.Feedback != nil {
		err = s.shares.UpdateFeedback(r.Context(), req.ShareID, *req.Feedback)
	}
	if err != nil {
		s.shareError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/community: latest published shares.
func (s *Server) handleCommunity(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		jsonError(w, "community feed is not configured", http.StatusServiceUnavailable)
		return
	}
	items, err := s.feed.Feed(r.Context())
	if err != nil {
		s.logger.Error("community feed failed", zap.Error(err))
		jsonError(w, "failed to fetch feed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grids": items})
}

// --- Analysis ---

// POST /api/analyze: judge a list of names, or a live session's grid.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.analyzeRL.Allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	if s.analyzer == nil {
		jsonError(w, "analysis is not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		CharacterNames []string `json:"characterNames"`
		SessionID      string   `json:"sessionId"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var sess *Session
	if req.SessionID != "" {
		if sess = s.sessions.Get(req.SessionID); sess == nil {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		req.CharacterNames = characterNames(sess.State())
	}
	if len(req.CharacterNames) == 0 {
		jsonError(w, emptyGridText, http.StatusBadRequest)
		return
	}

	v, err := s.analyzer.Analyze(r.Context(), req.CharacterNames)
	if err != nil {
		s.logger.Error("analysis failed", zap.Int("characters", len(req.CharacterNames)), zap.Error(err))
		jsonError(w, "failed to analyze taste", http.StatusInternalServerError)
		return
	}
	if sess != nil {
		sess.Do(func(ed *editor.Editor) error {
			ed.SetVerdict(v)
			return nil
		})
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "sessions": s.sessions.Len()}
	if s.shares != nil {
		if err := s.shares.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Helpers ---

func (s *Server) lookupShare(w http.ResponseWriter, r *http.Request, id string) (*share.Record, bool) {
	if s.shares == nil {
		jsonError(w, "sharing is not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	rec, err := s.shares.Get(r.Context(), id)
	if err != nil {
		s.shareError(w, err)
		return nil, false
	}
	return rec, true
}

func (s *Server) shareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, share.ErrNotFound):
		jsonError(w, "share not found", http.StatusNotFound)
	case errors.Is(err, share.ErrInvalidID), errors.Is(err, share.ErrInvalidVerdict):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("share store error", zap.Error(err))
		jsonError(w, "share store unavailable", http.StatusInternalServerError)
	}
}

// editorError writes an editor failure with its error code.
func editorError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, editor.ErrNoValidData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrOutOfRange), errors.Is(err, editor.ErrInvalidImageURL),
		errorCode(err) == "BadRequest", errorCode(err) == "UnknownEvent":
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorMessage("", err))
}

// rawText returns the bytes to decode from a JSON value: strings (pasted
// text, base64) are unquoted, anything else is passed through.
func rawText(raw json.RawMessage) []byte {
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return []byte(text)
	}
	return raw
}

func characterNames(st editor.State) []string {
	var names []string
	for _, c := range st.Cells {
		if c.Character != nil {
			names = append(names, c.Character.Name)
		}
	}
	return names
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
