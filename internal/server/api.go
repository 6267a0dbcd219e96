package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gridsilo/internal/ui"
	"gridsilo/internal/upload"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource"`
}

// FileResponse is the JSON form of a finalized file record.
type FileResponse struct {
	ID                string         `json:"id"`
	Filename          string         `json:"filename"`
	Length            int64          `json:"length"`
	ChunkSize         int            `json:"chunkSize"`
	UploadDate        time.Time      `json:"uploadDate"`
	Checksum          string         `json:"checksum"`
	ChecksumAlgorithm string         `json:"checksumAlgorithm"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// UploadResponse describes a resumable upload session.
type UploadResponse struct {
	UploadID  string `json:"uploadId"`
	FileID    string `json:"fileId"`
	Filename  string `json:"filename"`
	ChunkSize int    `json:"chunkSize"`
	State     string `json:"state"`
	Written   int64  `json:"written"`
}

// FileListResponse is returned by GET /files.
type FileListResponse struct {
	Files []FileResponse `json:"files"`
}

func newFileResponse(file upload.File) FileResponse {
	return FileResponse{
		ID:                file.ID.String(),
		Filename:          file.Filename,
		Length:            file.Length,
		ChunkSize:         file.ChunkSize,
		UploadDate:        file.UploadDate.UTC(),
		Checksum:          file.Checksum,
		ChecksumAlgorithm: string(file.ChecksumAlgorithm),
		Metadata:          file.Metadata,
	}
}

// chunkCount is the number of chunks a file of the given length occupies.
func chunkCount(length int64, chunkSize int) int64 {
	if chunkSize <= 0 {
		return 0
	}
	size := int64(chunkSize)
	return (length + size - 1) / size
}

func newUIFile(file upload.File) ui.File {
	var metadata map[string]string
	if len(file.Metadata) > 0 {
		metadata = make(map[string]string, len(file.Metadata))
		for key, value := range file.Metadata {
			metadata[key] = fmt.Sprint(value)
		}
	}

	return ui.File{
		ID:                file.ID.String(),
		Filename:          file.Filename,
		Length:            file.Length,
		ChunkSize:         file.ChunkSize,
		Chunks:            chunkCount(file.Length, file.ChunkSize),
		UploadDate:        file.UploadDate.UTC().Format(time.RFC3339),
		Checksum:          file.Checksum,
		ChecksumAlgorithm: string(file.ChecksumAlgorithm),
		Metadata:          metadata,
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code string, message string, resource string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Code:     code,
		Message:  message,
		Resource: resource,
	})
}

// writeJSONResponse encodes v as JSON and writes it to w with status.
func writeJSONResponse(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// isValidFilename enforces basic filename constraints: non-empty, at most
// 1024 bytes, and no control characters.
func isValidFilename(name string) bool {
	if len(name) == 0 || len(name) > 1024 {
		return false
	}

	return !strings.ContainsFunc(name, func(c rune) bool {
		return c < 0x20 || c == 0x7f
	})
}

// MetadataHeaderPrefix marks request headers copied into the file record's
// metadata, keyed by the lowercased remainder of the header name.
const MetadataHeaderPrefix = "X-Gridsilo-Meta-"

func metadataFromHeaders(header http.Header) map[string]any {
	var metadata map[string]any
	for key, values := range header {
		if !strings.HasPrefix(key, MetadataHeaderPrefix) || len(values) == 0 {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, MetadataHeaderPrefix))
		if name == "" {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[name] = values[0]
	}
	return metadata
}
