package capture

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/capturelabs/capture-core/internal/protocol"
	"github.com/google/uuid"
)

// multipart form parsing keeps small uploads in memory.
const maxFormMemory = 16 << 20

// Handler adapts HTTP transport to the capture service. It extracts the
// artifact and identity from whichever shape the client used and never
// lets transport details leak into the service.
type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With(slog.String("component", "http"))}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, failure(protocol.ErrInternal, "method not allowed", nil), http.StatusMethodNotAllowed)
		return
	}

	req, perr := h.parseRequest(r)
	if perr != nil {
		h.writeError(w, perr, 0)
		return
	}

	if perr := h.svc.Process(r.Context(), req); perr != nil {
		h.writeError(w, perr, 0)
		return
	}

	h.writeJSON(w, http.StatusOK, protocol.SuccessResponse{
		Success:   true,
		Message:   "audio processed and transcript forwarded",
		RequestID: req.RequestID,
	})
}

// parseRequest builds one artifact value regardless of whether the client
// sent a multipart form or a raw audio body.
func (h *Handler) parseRequest(r *http.Request) (Request, *Error) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var artifact *Artifact
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return Request{}, failure(protocol.ErrInternal, "malformed multipart form", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return Request{}, failure(protocol.ErrInternal, "missing audio form field", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return Request{}, failure(protocol.ErrInternal, "failed to read upload", err)
		}
		artifact = NewArtifact(data, header.Header.Get("Content-Type"))

	case strings.HasPrefix(contentType, "audio/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return Request{}, failure(protocol.ErrInternal, "failed to read upload", err)
		}
		artifact = NewArtifact(data, contentType)

	default:
		return Request{}, failure(protocol.ErrInternal, "no audio provided", nil)
	}

	return Request{
		RequestID: requestID,
		ClientID:  h.clientID(r),
		APIKey:    h.apiKey(r),
		Artifact:  artifact,
	}, nil
}

// clientID is taken from the form field, query parameter or header, in
// that order.
func (h *Handler) clientID(r *http.Request) string {
	if id := r.FormValue("clientId"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("clientId"); id != "" {
		return id
	}
	return r.Header.Get("X-Client-Id")
}

func (h *Handler) apiKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.FormValue("apiKey")
}

func (h *Handler) writeError(w http.ResponseWriter, perr *Error, statusOverride int) {
	status := protocol.StatusFor(perr.Code)
	if statusOverride != 0 {
		status = statusOverride
	}
	if perr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(perr.RetryAfter))
	}
	h.writeJSON(w, status, protocol.ErrorResponse{
		Success: false,
		Error:   perr.Code,
		Message: perr.Message,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
