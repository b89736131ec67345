package main

import (
	"context"
	"crypto/tls"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"voiceguard/classifier"
	"voiceguard/config"
	"voiceguard/history"
	"voiceguard/mfcc"
	"voiceguard/utils"
)

//go:embed static
var staticFiles embed.FS

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func newClassifyHandler(a *analyzer, maxUploadBytes int64) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "upload is too large")
				return
			}
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "no audio file provided")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			logger.ErrorContext(ctx, "failed to read upload", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		log.Printf("[HTTP] Classification request: file=%s, size=%d\n", header.Filename, len(data))

		result, err := a.analyze(ctx, data, header.Filename, "http")
		if err != nil {
			status, message := errorStatus(err)
			logger.ErrorContext(ctx, "failed to analyze upload",
				slog.String("file", header.Filename),
				slog.Int("status", status),
				slog.Any("error", xerrors.New(err)),
			)
			writeJSONError(w, status, message)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func newAnalysesHandler(store history.Store) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := history.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		analyses, err := store.ListAnalyses(ctx, limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load analyses", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load analyses")
			return
		}

		writeJSON(w, http.StatusOK, analyses)
	}
}

func newModelInfoHandler(model classifier.Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, model.Info())
	}
}

// newRouter wires the API, the socket server and the embedded front end.
// socketServer may be nil in tests.
func newRouter(a *analyzer, cfg config.Config, socketServer *socketio.Server) *http.ServeMux {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("embedded static files: %v", err)
	}

	mux := http.NewServeMux()
	if socketServer != nil {
		mux.Handle("/socket.io/", socketServer)
	}
	mux.HandleFunc("/api/audio/classify", newClassifyHandler(a, cfg.MaxUploadBytes()))
	mux.HandleFunc("/api/analyses", newAnalysesHandler(a.store))
	mux.HandleFunc("/api/model", newModelInfoHandler(a.model))
	mux.Handle("/", http.FileServer(http.FS(static)))
	return mux
}

// originChecker accepts requests without an Origin header, same-host
// origins and anything listed in allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func newSocketServer(controller *socketController, allowedOrigins []string) *socketio.Server {
	allowOriginFunc := originChecker(allowedOrigins)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.emitModelInfo(socket)
	})

	server.OnEvent("/", "analyzeAudio", func(socket socketio.Conn, msg string) {
		log.Printf("analyzeAudio received from %s, data length: %d\n", socket.ID(), len(msg))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleAnalyzeAudio for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleAnalyzeAudio(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	return server
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := utils.GetLogger()

	model, err := classifier.Load(cfg.ModelPath)
	if err != nil {
		return err
	}
	defer model.Close()
	info := model.Info()
	log.Printf("Loaded %s model from %s\n", info.Backend, cfg.ModelPath)

	store, err := history.Open(ctx, history.Options{
		Backend:    cfg.History.Backend,
		SQLitePath: cfg.History.SQLitePath,
		JSONPath:   cfg.History.JSONPath,
		MongoURI:   cfg.History.MongoURI,
		MongoDB:    cfg.History.MongoDB,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	logger.InfoContext(ctx, "history store ready", slog.String("backend", cfg.History.Backend))

	a := newAnalyzer(mfcc.Default(), model, store)
	controller := newSocketController(a, cfg.MaxUploadBytes())
	server := newSocketServer(controller, cfg.AllowedOrigins)

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	return serveHTTP(ctx, cfg, newRouter(a, cfg, server))
}

func serveHTTP(ctx context.Context, cfg config.Config, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown: %v", err)
		}
	}()

	var err error
	if cfg.Protocol == "https" {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		log.Printf("Starting HTTPS server on %s\n", httpServer.Addr)
		err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.CertKey)
	} else {
		log.Printf("Starting HTTP server on port %v", cfg.Port)
		err = httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
