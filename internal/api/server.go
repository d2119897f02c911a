package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/avatar"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/fetcher"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/generator"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/session"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/store"
)

// Generator produces avatar images from prompts
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// Options configures a Server
type Options struct {
	Addr            string
	MaxConns        int
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	Store      *store.Store
	Boards     *session.Manager
	Generator  Generator // nil disables avatar generation
	Tracker    *generator.Tracker
	Randomizer *avatar.Randomizer
	Fetcher    *fetcher.Fetcher
	Logger     *zap.Logger
}

// Server handles HTTP requests for the drawing and avatar API
type Server struct {
	opts   Options
	store  *store.Store
	boards *session.Manager
	gen    Generator
	track  *generator.Tracker
	random *avatar.Randomizer
	fetch  *fetcher.Fetcher
	log    *zap.Logger

	// parent of background generation requests
	baseCtx    context.Context
	cancelBase context.CancelFunc

	upgrader websocket.Upgrader
	streamMu sync.Mutex
	streams  map[*websocket.Conn]struct{}
}

// New creates a new API server
func New(opts Options) *Server {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 256
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Boards == nil {
		opts.Boards = session.NewManager(session.Options{Logger: opts.Logger})
	}
	if opts.Tracker == nil {
		opts.Tracker = generator.NewTracker()
	}
	if opts.Randomizer == nil {
		opts.Randomizer = avatar.NewRandomizer(nil)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetcher.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:       opts,
		store:      opts.Store,
		boards:     opts.Boards,
		gen:        opts.Generator,
		track:      opts.Tracker,
		random:     opts.Randomizer,
		fetch:      opts.Fetcher,
		log:        opts.Logger.Named("api"),
		baseCtx:    ctx,
		cancelBase: cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		streams: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the routed API with CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	// Parts of speech
	mux.HandleFunc("GET /parts", s.listParts)
	mux.HandleFunc("GET /parts/{id}", s.getPart)
	mux.HandleFunc("POST /parts/{id}/avatar", s.generateAvatar)
	mux.HandleFunc("GET /parts/{id}/avatar/status", s.avatarStatus)
	mux.HandleFunc("DELETE /parts/{id}/avatar/pending", s.cancelAvatar)
	mux.HandleFunc("GET /palette", s.palette)

	// Avatars
	mux.HandleFunc("GET /avatars/random", s.randomAvatar)
	mux.HandleFunc("POST /avatars", s.createAvatar)
	mux.HandleFunc("GET /avatars", s.listAvatars)
	mux.HandleFunc("DELETE /avatars/{id}", s.deleteAvatar)
	mux.HandleFunc("GET /avatars/{id}/badge.png", s.avatarBadge)

	// Boards
	mux.HandleFunc("POST /boards", s.createBoard)
	mux.HandleFunc("GET /boards", s.listBoards)
	mux.HandleFunc("GET /boards/{id}", s.getBoard)
	mux.HandleFunc("DELETE /boards/{id}", s.deleteBoard)
	mux.HandleFunc("POST /boards/{id}/events", s.applyEvents)
	mux.HandleFunc("GET /boards/{id}/ws", s.streamEvents)
	mux.HandleFunc("GET /boards/{id}/image.png", s.boardImage)
	mux.HandleFunc("GET /boards/{id}/data-uri", s.boardDataURI)
	mux.HandleFunc("PUT /boards/{id}/part", s.selectPart)
	mux.HandleFunc("POST /boards/{id}/save", s.saveBoard)

	// Gallery
	mux.HandleFunc("GET /drawings", s.listDrawings)
	mux.HandleFunc("GET /drawings/{file}", s.getDrawing)
	mux.HandleFunc("GET /drawings/{id}/thumb.png", s.drawingThumb)
	mux.HandleFunc("DELETE /drawings/{id}", s.deleteDrawing)
	mux.HandleFunc("GET /gallery.pdf", s.galleryPDF)

	return withCORS(s.withLogging(mux))
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully and settles background work.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadTimeout,
	}
	ln = netutil.LimitListener(ln, s.opts.MaxConns)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", s.opts.MaxConns))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.closeStreams()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.Close()
	s.log.Info("stopped")
	return err
}

// Close cancels in-flight generation requests, closes live streams and waits
// for background work to settle.
func (s *Server) Close() {
	s.cancelBase()
	s.closeStreams()
	s.track.Wait()
}

func (s *Server) addStream(c *websocket.Conn) {
	s.streamMu.Lock()
	s.streams[c] = struct{}{}
	s.streamMu.Unlock()
}

func (s *Server) removeStream(c *websocket.Conn) {
	s.streamMu.Lock()
	delete(s.streams, c)
	s.streamMu.Unlock()
}

func (s *Server) closeStreams() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	for c := range s.streams {
		c.Close()
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"generator": s.gen != nil,
		"boards":    len(s.boards.List()),
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBoardNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownPart):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrInvalidColor),
		errors.Is(err, canvas.ErrInvalidWidth),
		errors.Is(err, canvas.ErrUnknownEvent),
		errors.Is(err, avatar.ErrIncompleteDraft),
		errors.Is(err, session.ErrInvalidSize),
		errors.Is(err, generator.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoPart),
		errors.Is(err, generator.ErrRequestPending):
		return http.StatusConflict
	case errors.Is(err, canvas.ErrInvalidSurface):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrTooManyBoards):
		return http.StatusTooManyRequests
	case errors.Is(err, generator.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
