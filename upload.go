package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>...",
		Short: "Enqueue files for upload and wait for them to finish",
		Long: `Enqueues one or more local files for chunked upload and blocks until each
one reaches a terminal state (completed or error).

Each file is assigned a fresh client-generated id; a later 'resume' after a
crash or restart continues the same upload by matching on the persisted
source ref, not by re-running this command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}
}

func runUpload(cmd *cobra.Command, paths []string) error {
	cc := mustCLIContext(cmd.Context())

	descriptors := make([]uploadmodel.FileDescriptor, 0, len(paths))
	sourceRefs := make(map[string]string, len(paths))

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		id := uuid.NewString()
		descriptors = append(descriptors, uploadmodel.FileDescriptor{
			ID:       id,
			Name:     filepath.Base(path),
			Size:     info.Size(),
			MimeType: detectMimeType(path),
		})
		sourceRefs[id] = path
	}

	waiters := make(map[string]chan uploadmodel.UploadItem, len(descriptors))
	for _, d := range descriptors {
		waiters[d.ID] = cc.Watch.register(d.ID)
	}

	if err := cc.Coord.Enqueue(descriptors, sourceRefs); err != nil {
		for _, d := range descriptors {
			cc.Watch.unregister(d.ID)
		}
		return fmt.Errorf("enqueue: %w", err)
	}

	for _, d := range descriptors {
		item, err := cc.Watch.await(cmd.Context(), waiters[d.ID])
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", d.Name, err)
		}

		if item.Status == uploadmodel.StatusError {
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", d.Name, item.ErrorMessage)
			continue
		}

		cc.Statusf("uploaded: %s\n", d.Name)
	}

	return nil
}

// detectMimeType resolves a file's MIME type from its extension, falling
// back to a content sniff of the first 512 bytes (net/http's algorithm)
// when the extension is unknown — the client-side inference explicitly
// out of scope for the upload core itself (spec.md §1) but necessary for
// this CLI to produce a FileDescriptor at all.
func detectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)

	return http.DetectContentType(buf[:n])
}
