package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// maxUploadBytes bounds how much of an upload is read into memory.
const maxUploadBytes = 32 << 20

// Ingester accepts uploads and advances them through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, filename, mimeType string, data []byte) (*models.Document, error)
	Process(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID string) error
}

// Querier answers free-text questions against the knowledge base.
type Querier interface {
	Query(ctx context.Context, question, tone string) (models.Answer, error)
}

// StreamQuerier is implemented by queriers that can deliver the answer
// incrementally. Streaming websocket chats use it when available.
type StreamQuerier interface {
	QueryStream(ctx context.Context, question, tone string) (<-chan string, []models.Citation, error)
}

// Drafter produces emails, memos and plans.
type Drafter interface {
	Draft(ctx context.Context, draftType, tone string, constraints map[string]any) (string, error)
}

// Briefer composes the morning brief.
type Briefer interface {
	Brief(ctx context.Context) (string, error)
}

type Config struct {
	Port           string
	Streaming      bool
	ProcessTimeout time.Duration // budget for background pipeline runs
}

// Server wires the HTTP boundary to the pipeline and query engine. All
// collaborators arrive as interfaces so tests can substitute fakes.
type Server struct {
	config   Config
	ingester Ingester
	querier  Querier
	drafter  Drafter
	briefer  Briefer
}

func New(config Config, ingester Ingester, querier Querier, drafter Drafter, briefer Briefer) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.ProcessTimeout == 0 {
		config.ProcessTimeout = 10 * time.Minute
	}
	return &Server{
		config:   config,
		ingester: ingester,
		querier:  querier,
		drafter:  drafter,
		briefer:  briefer,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/draft", s.handleDraft)
	mux.HandleFunc("/api/brief", s.handleBrief)
	mux.HandleFunc("/api/documents/", s.handleDocument)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe blocks serving HTTP on the configured port.
func (s *Server) ListenAndServe() error {
	log.Printf("[server] listening on port %s", s.config.Port)
	return http.ListenAndServe(":"+s.config.Port, s.Handler())
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, types.ErrInvalidInput, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, types.ErrInvalidInput, "no file uploaded")
		return
	}
	defer file.Close()

	// read one byte past the limit so oversized uploads are rejected
	// rather than silently truncated
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, types.ErrInvalidInput, "failed to read upload")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, types.ErrInvalidInput, "upload exceeds the 32 MiB limit")
		return
	}

	doc, err := s.ingester.Ingest(r.Context(), header.Filename, uploadMIMEType(header.Filename, header.Header.Get("Content-Type")), data)
	if err != nil {
		writeError(w, err, "")
		return
	}

	// Extraction, chunking and embedding run in the background; the
	// caller gets the storage path back immediately.
	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ProcessTimeout)
		defer cancel()
		if err := s.ingester.Process(ctx, id); err != nil {
			log.Printf("[server] processing document %s: %v", id, err)
		}
	}(doc.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"path":       doc.StorageKey,
		"documentId": doc.ID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req struct {
		Query string `json:"query"`
		Tone  string `json:"tone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ErrInvalidInput, "malformed request body")
		return
	}

	answer, err := s.querier.Query(r.Context(), req.Query, req.Tone)
	if err != nil {
		writeError(w, err, "")
		return
	}

	resp := map[string]any{
		"answer":   answer.Text,
		"grounded": answer.Grounded,
	}
	if len(answer.Citations) > 0 {
		resp["citations"] = answer.Citations
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req struct {
		Type        string         `json:"type"`
		Tone        string         `json:"tone"`
		Constraints map[string]any `json:"constraints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ErrInvalidInput, "malformed request body")
		return
	}

	draft, err := s.drafter.Draft(r.Context(), req.Type, req.Tone, req.Constraints)
	if err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	brief, err := s.briefer.Brief(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"brief": brief})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, types.ErrInvalidInput, "missing document id")
		return
	}

	if err := s.ingester.Delete(r.Context(), id); err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		s.handleChatMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleChatMessage(ctx context.Context, conn *websocket.Conn, msg wsMessage) {
	if s.config.Streaming {
		if sq, ok := s.querier.(StreamQuerier); ok {
			parts, citations, err := sq.QueryStream(ctx, msg.Content, "")
			if err != nil {
				s.sendMessage(conn, "error", err.Error(), nil)
				return
			}
			for part := range parts {
				s.sendMessage(conn, "stream", part, nil)
			}
			s.sendMessage(conn, "done", "", citations)
			return
		}
	}

	answer, err := s.querier.Query(ctx, msg.Content, "")
	if err != nil {
		s.sendMessage(conn, "error", err.Error(), nil)
		return
	}

	if s.config.Streaming {
		// querier cannot stream; fake it by sentence
		for _, part := range splitSentences(answer.Text) {
			s.sendMessage(conn, "stream", part, nil)
		}
		s.sendMessage(conn, "done", "", answer.Citations)
		return
	}

	s.sendMessage(conn, "response", answer.Text, answer.Citations)
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string, data any) {
	msg := wsMessage{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func splitSentences(text string) []string {
	var parts []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		parts = append(parts, current.String())
	}
	return parts
}

// uploadMIMEType prefers the declared content type, falling back to the
// filename extension.
func uploadMIMEType(filename, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return declared
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method Not Allowed"})
}

func writeError(w http.ResponseWriter, err error, message string) {
	if message == "" {
		message = err.Error()
	}
	writeJSON(w, types.HTTPStatus(err), map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
