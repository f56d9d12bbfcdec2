package http

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"homebudget/internal/core"
	"homebudget/internal/voice"
)

type voiceRequest struct {
	Transcript string `json:"transcript"`
}

type voiceResponse struct {
	Transcript  string                `json:"transcript"`
	Parsed      core.TransactionInput `json:"parsed"`
	Transaction *core.Transaction     `json:"transaction,omitempty"`
}

// handleVoice turns a spoken expense into a transaction. A JSON body carries
// the transcript; any other body is handed to the transcriber. With
// preview=true the parsed input is returned without saving.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.transcript(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	b, err := us.Current()
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	in, err := voice.Parse(transcript, b, s.keywords, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := voiceResponse{Transcript: transcript, Parsed: in}
	if preview, _ := strconv.ParseBool(r.URL.Query().Get("preview")); preview {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	tx, err := us.AddTransaction(r.Context(), in)
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	resp.Transaction = &tx
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) (string, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req voiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return "", err
		}
		return sanitizeInput(req.Transcript), nil
	}
	text, err := s.transcriber.Transcribe(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return sanitizeInput(text), nil
}
