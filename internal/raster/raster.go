// Package raster turns accepted source files into an ordered list of page images.
package raster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// baseDPI is the PDF user-space resolution; Scale multiplies it.
const baseDPI = 72

type Config struct {
	Pdfinfo  string // if empty -> "pdfinfo"
	Pdftoppm string // if empty -> "pdftoppm"
	Scale    int    // render scale over 72 dpi, default 2
	MaxPages int    // 0 = no limit, per document
	TempDir  string // "" = os.TempDir()
}

// Progress is called after each page with the running and total page counts.
type Progress func(done, total int)

// Error aborts a whole rasterization run
type Error struct {
	File string
	Page int
	Err  error
}

func (e *Error) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("could not render %s page %d: %v", e.File, e.Page, e.Err)
	}
	return fmt.Sprintf("could not read %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 2
	}
	return &Rasterizer{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner, mainly for tests.
func (r *Rasterizer) WithRunner(run Runner) *Rasterizer {
	r.runner = run
	return r
}

// DPI is the resolution passed to pdftoppm.
func (r *Rasterizer) DPI() int {
	return baseDPI * r.cfg.Scale
}

type plannedFile struct {
	file  models.SourceFile
	pages int
	path  string
}

// Rasterize renders every file in order. PDFs yield one image per page in
// ascending page order; images pass through unchanged as a single page.
// Any failure discards everything rendered so far.
func (r *Rasterizer) Rasterize(ctx context.Context, files []models.SourceFile, progress Progress) ([]models.PageImage, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to rasterize")
	}

	tmpDir, err := os.MkdirTemp(r.cfg.TempDir, "menuimport-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	// count pages up front so progress has a stable total
	plan := make([]plannedFile, 0, len(files))
	total := 0
	for i, f := range files {
		p, err := r.plan(ctx, tmpDir, i, f)
		if err != nil {
			return nil, err
		}
		plan = append(plan, p)
		total += p.pages
	}

	r.logger.Info("Rasterizing source files", "files", len(files), "pages", total, "dpi", r.DPI())

	pages := make([]models.PageImage, 0, total)
	for _, p := range plan {
		if !p.file.Kind.IsImage() {
			for n := 1; n <= p.pages; n++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				data, err := r.renderPage(ctx, p, n)
				if err != nil {
					return nil, &Error{File: p.file.Name, Page: n, Err: err}
				}
				pages = append(pages, models.PageImage{
					ID:           uuid.NewString(),
					SourceFileID: p.file.ID,
					Page:         n,
					Ordinal:      len(pages),
					MediaType:    string(models.KindPNG),
					Data:         data,
				})
				if progress != nil {
					progress(len(pages), total)
				}
			}
			continue
		}

		pages = append(pages, models.PageImage{
			ID:           uuid.NewString(),
			SourceFileID: p.file.ID,
			Page:         1,
			Ordinal:      len(pages),
			MediaType:    string(p.file.Kind),
			Data:         p.file.Data,
		})
		if progress != nil {
			progress(len(pages), total)
		}
	}

	return pages, nil
}

func (r *Rasterizer) plan(ctx context.Context, tmpDir string, idx int, f models.SourceFile) (plannedFile, error) {
	if f.Kind.IsImage() {
		if _, _, err := image.DecodeConfig(bytes.NewReader(f.Data)); err != nil {
			return plannedFile{}, &Error{File: f.Name, Err: fmt.Errorf("unreadable image: %w", err)}
		}
		return plannedFile{file: f, pages: 1}, nil
	}
	if f.Kind != models.KindPDF {
		return plannedFile{}, &Error{File: f.Name, Err: fmt.Errorf("unsupported kind %s", f.Kind)}
	}

	path := filepath.Join(tmpDir, fmt.Sprintf("src-%03d.pdf", idx))
	if err := os.WriteFile(path, f.Data, 0o600); err != nil {
		return plannedFile{}, fmt.Errorf("failed to stage %s: %w", f.Name, err)
	}

	n, err := r.pageCount(ctx, path)
	if err != nil {
		return plannedFile{}, &Error{File: f.Name, Err: err}
	}
	if r.cfg.MaxPages > 0 && n > r.cfg.MaxPages {
		return plannedFile{}, &Error{File: f.Name, Err: fmt.Errorf("document has %d pages (max %d)", n, r.cfg.MaxPages)}
	}
	return plannedFile{file: f, pages: n, path: path}, nil
}

// pageCount asks pdfinfo for the "Pages:" line.
func (r *Rasterizer) pageCount(ctx context.Context, path string) (int, error) {
	out, errb, err := r.runner.Run(ctx, r.cfg.Pdfinfo, path)
	if err != nil {
		return 0, fmt.Errorf("malformed PDF: %s", firstLine(errb, err))
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("bad page count %q", line)
		}
		if n < 1 {
			return 0, fmt.Errorf("document has no pages")
		}
		return n, nil
	}
	return 0, fmt.Errorf("malformed PDF: page count not reported")
}

// renderPage runs: pdftoppm -f N -l N -r DPI -png -singlefile <in.pdf> <prefix>
func (r *Rasterizer) renderPage(ctx context.Context, p plannedFile, n int) ([]byte, error) {
	prefix := strings.TrimSuffix(p.path, ".pdf") + fmt.Sprintf("-p%04d", n)
	page := strconv.Itoa(n)

	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-f", page, "-l", page,
		"-r", strconv.Itoa(r.DPI()),
		"-png", "-singlefile",
		p.path, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("%s", firstLine(errb, err))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	return data, nil
}

func firstLine(stderr []byte, err error) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return err.Error()
	}
	if i := strings.IndexByte(s, '\n'); i > 0 {
		s = s[:i]
	}
	return s
}
