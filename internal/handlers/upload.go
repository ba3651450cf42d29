package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bistro-cms/menuimport/internal/intake"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/wizard"
)

// maxUploadBody caps one multipart request; individual files are checked by intake
const maxUploadBody = 8 * models.MaxFileSize

// HandleUpload adds files to the session, either as multipart "files" parts
// or as a JSON body {"urls": [...]} naming files to fetch.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.getSessionOrError(w, id); !ok {
		return
	}

	var (
		candidates []intake.Candidate
		err        error
	)
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		candidates, err = h.candidatesFromURLs(w, r)
	} else {
		candidates, err = h.candidatesFromForm(w, r)
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(candidates) == 0 {
		h.writeError(w, "No files in request", http.StatusBadRequest)
		return
	}

	var rejected error
	next, err := h.sessionStore.Update(id, func(s wizard.State) (wizard.State, error) {
		next, err := wizard.AddFiles(s, candidates)
		var verr models.ValidationErrors
		if errors.As(err, &verr) {
			// keep the accepted files, report the rest
			rejected = err
			return next, nil
		}
		return next, err
	})
	if err != nil {
		h.writeStepError(w, next, err)
		return
	}
	if rejected != nil {
		h.logger.Info("Files rejected", "session_id", id, "error", rejected)
		h.writeOutcome(w, next, wizard.Classify(rejected))
		return
	}
	h.logger.Info("Files added", "session_id", id, "count", len(candidates), "total", len(next.Files))
	h.writeOutcome(w, next, wizard.Outcome{Kind: wizard.KindOK})
}

func (h *Handler) candidatesFromForm(w http.ResponseWriter, r *http.Request) ([]intake.Candidate, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}

	candidates := make([]intake.Candidate, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", fh.Filename, err)
		}
		// one byte past the limit is enough for intake to reject it
		data, err := io.ReadAll(io.LimitReader(file, models.MaxFileSize+1))
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read file contents: %w", err)
		}
		candidates = append(candidates, intake.Candidate{
			Name: fh.Filename,
			Kind: intake.KindOf(fh.Header.Get("Content-Type"), fh.Filename),
			Size: fh.Size,
			Data: data,
		})
	}
	return candidates, nil
}

func (h *Handler) candidatesFromURLs(w http.ResponseWriter, r *http.Request) ([]intake.Candidate, error) {
	var request struct {
		URLs []string `json:"urls"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	candidates := make([]intake.Candidate, 0, len(request.URLs))
	for _, u := range request.URLs {
		c, err := h.downloadFile(r.Context(), u)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (h *Handler) downloadFile(ctx context.Context, fileURL string) (intake.Candidate, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return intake.Candidate{}, fmt.Errorf("invalid file URL %q", fileURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return intake.Candidate{}, fmt.Errorf("failed to download file: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return intake.Candidate{}, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return intake.Candidate{}, fmt.Errorf("failed to download file: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, models.MaxFileSize+1))
	if err != nil {
		return intake.Candidate{}, fmt.Errorf("failed to read file data: %w", err)
	}

	filename := path.Base(parsed.Path)
	if filename == "" || filename == "/" || filename == "." {
		filename = "menu"
	}
	size := resp.ContentLength
	if size < int64(len(data)) {
		size = int64(len(data))
	}
	h.logger.Info("File downloaded", "url", fileURL, "bytes", len(data))
	return intake.Candidate{
		Name: filename,
		Kind: intake.KindOf(resp.Header.Get("Content-Type"), filename),
		Size: size,
		Data: data,
	}, nil
}

func (h *Handler) HandleRemoveFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	h.step(w, r, func(s wizard.State) (wizard.State, error) {
		return wizard.RemoveFile(s, fileID)
	})
}
