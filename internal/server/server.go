// Package server exposes the agent over HTTP: thread listing, message
// turns, document uploads, and history replay.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/synapse/internal/types"
)

// TurnHandler is a callback that processes one user turn on a thread and
// returns the final assistant answer. Document, when non-empty, is attached
// to the thread before the turn executes.
type TurnHandler func(r *http.Request, threadID types.ThreadID, text, document string) (string, error)

const maxUploadBytes = 32 << 20

// Server is a lightweight HTTP handler for the agent API.
type Server struct {
	store     types.ThreadStore
	handler   TurnHandler
	uploadDir string
	mux       *http.ServeMux
}

// NewServer creates a Server over the given thread store and turn handler.
// Uploaded documents are saved under uploadDir.
func NewServer(store types.ThreadStore, handler TurnHandler, uploadDir string) *Server {
	s := &Server{
		store:     store,
		handler:   handler,
		uploadDir: uploadDir,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/threads", s.handleListThreads)
	s.mux.HandleFunc("POST /api/threads/{id}/messages", s.handlePostMessage)
	s.mux.HandleFunc("GET /api/threads/{id}/messages", s.handleGetMessages)
	s.mux.HandleFunc("POST /api/threads/{id}/document", s.handleUploadDocument)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type threadResponse struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		slog.Error("list threads failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]threadResponse, 0, len(threads))
	for id, title := range threads {
		result = append(result, threadResponse{ThreadID: string(id), Title: title})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ThreadID < result[j].ThreadID
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// messageRequest is the JSON body for POST /api/threads/{id}/messages.
type messageRequest struct {
	Message  string `json:"message"`
	Document string `json:"document"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	threadID := types.ThreadID(r.PathValue("id"))

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	answer, err := s.handler(r, threadID, req.Message, req.Document)
	if err != nil {
		slog.Error("turn failed", "thread_id", string(threadID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": answer})
}

type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	At      string `json:"at,omitempty"`
}

// handleGetMessages replays the conversation as the user saw it: tool
// results and assistant messages that only carried tool calls are omitted.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	threadID := types.ThreadID(r.PathValue("id"))

	history, err := s.store.Load(r.Context(), threadID)
	if err != nil {
		slog.Error("load thread failed", "thread_id", string(threadID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]messageResponse, 0, len(history))
	for _, msg := range history {
		if msg.Role == types.RoleTool {
			continue
		}
		if msg.Role == types.RoleAssistant && msg.Content == "" {
			continue
		}
		entry := messageResponse{Role: string(msg.Role), Content: msg.Content}
		if !msg.At.IsZero() {
			entry.At = msg.At.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		result = append(result, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	threadID := types.ThreadID(r.PathValue("id"))

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, `{"error":"invalid multipart form"}`, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"error":"file field is required"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := sanitizeFilename(header.Filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx":
	default:
		http.Error(w, `{"error":"only PDF and DOCX files are supported"}`, http.StatusBadRequest)
		return
	}

	dir := filepath.Join(s.uploadDir, string(threadID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("create upload dir failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		slog.Error("create upload file failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		slog.Error("write upload failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if err := out.Close(); err != nil {
		slog.Error("close upload failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	if err := s.store.SetAttachedDocument(r.Context(), threadID, dest); err != nil {
		slog.Error("attach document failed", "thread_id", string(threadID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	slog.Info("document uploaded", "thread_id", string(threadID), "path", dest)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"path": dest})
}

// sanitizeFilename strips any path components from an uploaded filename so
// the file always lands inside the upload directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return fmt.Sprintf("upload-%d", os.Getpid())
	}
	return name
}
