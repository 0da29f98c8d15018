package apiclient

// Wire envelopes for the four endpoints of spec.md §4.3, §6. Field names
// follow the documented JSON keys exactly; b64 chunk payloads travel as
// plain strings.

// InitiateRequest starts an upload session.
type InitiateRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	FileHash string `json:"fileHash"`
}

// InitiateResponse is returned on a successful initiate call. A non-nil
// FileID with TotalChunks==0 signals a server-side dedup hit.
type InitiateResponse struct {
	UploadID    string  `json:"uploadId"`
	ChunkSize   int64   `json:"chunkSize"`
	TotalChunks int     `json:"totalChunks"`
	FileID      *string `json:"fileId,omitempty"`
	Message     *string `json:"message,omitempty"`
}

// UploadChunkRequest carries one base64-encoded chunk.
type UploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkData  string `json:"chunkData"`
}

// UploadChunkResponse confirms a chunk was accepted.
type UploadChunkResponse struct {
	Success    bool   `json:"success"`
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// FinalizeRequest requests server-side assembly of all uploaded chunks.
type FinalizeRequest struct {
	UploadID string `json:"uploadId"`
}

// FinalizeResponse carries the resulting server-side file identifier.
type FinalizeResponse struct {
	Success  bool   `json:"success"`
	UploadID string `json:"uploadId"`
	FileID   string `json:"fileId"`
}

// StatusResponse reports server-side session state.
type StatusResponse struct {
	UploadID       string  `json:"uploadId"`
	Status         string  `json:"status"`
	UploadedChunks []int   `json:"uploadedChunks"`
	TotalChunks    int     `json:"totalChunks"`
	FileID         *string `json:"fileId,omitempty"`
	Error          *string `json:"error,omitempty"`
}

// errorEnvelope is the shape of a non-2xx JSON body (spec.md §4.3).
type errorEnvelope struct {
	Error string `json:"error"`
}
