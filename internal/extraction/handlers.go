package extraction

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListDocuments returns every ledger record
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		slog.Error("Error listing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

// handleUploadDocument processes one uploaded document synchronously
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was provided. Upload a PDF or image in the \"file\" field.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	record, err := s.service.ProcessUpload(r.Context(), header.Filename, data)
	if err != nil {
		slog.Error("Error processing document", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, record.Result)
}

// handleGetDocument returns a single ledger record
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.service.GetRecord(id)
	if err != nil {
		s.lookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleGetDocumentSummary returns the summary rows of one document as CSV
func (s *Server) handleGetDocumentSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.RecordSummaryCSV(id)
	if err != nil {
		s.lookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": id + ".csv"}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.Write(data)
}

// handleGetDocumentInvoices returns the invoice JSON file of one document
func (s *Server) handleGetDocumentInvoices(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.RecordInvoices(r.PathValue("id"))
	if err != nil {
		s.lookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleDeleteDocument deletes a record and its output file
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteRecord(id); err != nil {
		s.lookupError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Document not found", http.StatusNotFound)
		return
	}
	slog.Error("Error loading record", "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}
