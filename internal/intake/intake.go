// Package intake validates operator-selected files before anything is rendered.
package intake

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/google/uuid"
)

// Candidate is a file the operator picked, not yet accepted
type Candidate struct {
	Name string
	// Kind is the declared content type, usually from the upload header
	Kind models.MediaKind
	Size int64
	Data []byte
}

// Rejection explains why a candidate was not added
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// KindFromName derives a kind from the file extension
func KindFromName(name string) models.MediaKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.KindPDF
	case ".jpg", ".jpeg":
		return models.KindJPEG
	case ".png":
		return models.KindPNG
	case ".webp":
		return models.KindWebP
	case ".gif":
		return models.KindGIF
	}
	return models.MediaKind(mime.TypeByExtension(filepath.Ext(name)))
}

// KindOf prefers a declared content type and falls back to the extension.
// Parameters such as charset are dropped.
func KindOf(declared, name string) models.MediaKind {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return models.MediaKind(strings.ToLower(mt))
		}
	}
	return KindFromName(name)
}

// Check returns the rejection reason for a candidate, or "" when it is acceptable
func Check(c Candidate) string {
	if !c.Kind.Supported() {
		kind := string(c.Kind)
		if kind == "" {
			kind = "unknown"
		}
		return fmt.Sprintf("unsupported file type %s (accepted: PDF, JPEG, PNG, WebP, GIF)", kind)
	}
	if size(c) > models.MaxFileSize {
		return fmt.Sprintf("file too large: %d bytes (max %d MB)", size(c), models.MaxFileSize>>20)
	}
	return ""
}

// AddFiles validates each candidate independently and appends the accepted
// ones to set in the order given. The input set is never modified.
func AddFiles(set []models.SourceFile, candidates []Candidate) (next, accepted []models.SourceFile, rejected []Rejection) {
	next = make([]models.SourceFile, len(set), len(set)+len(candidates))
	copy(next, set)

	for _, c := range candidates {
		if reason := Check(c); reason != "" {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: reason})
			continue
		}
		f := models.SourceFile{
			ID:   uuid.NewString(),
			Name: c.Name,
			Size: size(c),
			Kind: c.Kind,
			Data: c.Data,
		}
		next = append(next, f)
		accepted = append(accepted, f)
	}
	return next, accepted, rejected
}

// RemoveFile drops the file with the given id. Unknown ids leave the set unchanged.
func RemoveFile(set []models.SourceFile, id string) []models.SourceFile {
	next := make([]models.SourceFile, 0, len(set))
	for _, f := range set {
		if f.ID != id {
			next = append(next, f)
		}
	}
	return next
}

func size(c Candidate) int64 {
	if c.Size > 0 {
		return c.Size
	}
	return int64(len(c.Data))
}
