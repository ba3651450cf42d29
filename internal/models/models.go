package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxFileSize is the largest source file accepted for import (10 MiB).
const MaxFileSize int64 = 10 << 20

// LowConfidenceThreshold marks extracted candidates that need a closer look.
const LowConfidenceThreshold = 0.8

// MediaKind is the declared content type of an uploaded file
type MediaKind string

const (
	KindPDF  MediaKind = "application/pdf"
	KindJPEG MediaKind = "image/jpeg"
	KindPNG  MediaKind = "image/png"
	KindWebP MediaKind = "image/webp"
	KindGIF  MediaKind = "image/gif"
)

// SupportedKinds lists every kind the importer accepts, in display order
var SupportedKinds = []MediaKind{KindPDF, KindJPEG, KindPNG, KindWebP, KindGIF}

// Supported reports whether k is one of the accepted kinds
func (k MediaKind) Supported() bool {
	for _, s := range SupportedKinds {
		if k == s {
			return true
		}
	}
	return false
}

// IsImage reports whether the kind is a raster image (anything but PDF)
func (k MediaKind) IsImage() bool {
	return k.Supported() && k != KindPDF
}

// SourceFile is a file the operator selected for import
type SourceFile struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Size int64     `json:"size"`
	Kind MediaKind `json:"kind"`
	Data []byte    `json:"-"`
}

// PageImage is one rendered page, ready to send for extraction
type PageImage struct {
	ID           string `json:"id"`
	SourceFileID string `json:"source_file_id"`
	Page         int    `json:"page"`
	Ordinal      int    `json:"ordinal"`
	MediaType    string `json:"media_type"`
	Data         []byte `json:"-"`
}

// CandidateItem is an extracted menu item awaiting operator review
type CandidateItem struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty" yaml:"price,omitempty"`
	Tags        []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Confidence  float64          `json:"confidence" yaml:"confidence"`
	// PriceIssue holds the reason a source price could not be used
	PriceIssue string `json:"price_issue,omitempty" yaml:"price_issue,omitempty"`
}

// LowConfidence reports whether the extraction service was unsure about this item
func (c CandidateItem) LowConfidence() bool {
	return c.Confidence < LowConfidenceThreshold
}

// DuplicatePolicy decides what happens when an imported name already exists in the category
type DuplicatePolicy string

const (
	PolicyUpdateExisting  DuplicatePolicy = "update-existing"
	PolicySkipDuplicates  DuplicatePolicy = "skip-duplicates"
	PolicyFailOnDuplicate DuplicatePolicy = "fail-on-duplicate"
)

// Policies lists the duplicate policies in display order
var Policies = []DuplicatePolicy{PolicyUpdateExisting, PolicySkipDuplicates, PolicyFailOnDuplicate}

// ParsePolicy maps a user supplied string onto a policy. Empty means the default.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return PolicyUpdateExisting, nil
	}
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// ImportSpec captures the options chosen in the wizard's options step
type ImportSpec struct {
	CategoryID        string          `json:"category_id" yaml:"category_id"`
	ClearExisting     bool            `json:"clear_existing" yaml:"clear_existing"`
	Featured          bool            `json:"featured" yaml:"featured"`
	SpecialScheduling bool            `json:"special_scheduling" yaml:"special_scheduling"`
	StartDate         *time.Time      `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate           *time.Time      `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Policy            DuplicatePolicy `json:"policy" yaml:"policy"`
}

// Normalize applies the defaulting rules: an empty policy becomes
// update-existing and special scheduling always clears the category first.
func (s ImportSpec) Normalize() ImportSpec {
	if s.Policy == "" {
		s.Policy = PolicyUpdateExisting
	}
	if s.SpecialScheduling {
		s.ClearExisting = true
	} else {
		s.StartDate = nil
		s.EndDate = nil
	}
	return s
}

// Validate checks the spec and returns every problem found
func (s ImportSpec) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(s.CategoryID) == "" {
		errs = append(errs, ValidationError{Field: "category_id", Message: "choose a target category"})
	}
	if _, err := ParsePolicy(string(s.Policy)); err != nil {
		errs = append(errs, ValidationError{Field: "policy", Message: err.Error()})
	}
	if s.SpecialScheduling {
		if s.StartDate == nil {
			errs = append(errs, ValidationError{Field: "start_date", Message: "special scheduling needs a start date"})
		}
		if s.EndDate == nil {
			errs = append(errs, ValidationError{Field: "end_date", Message: "special scheduling needs an end date"})
		}
		if s.StartDate != nil && s.EndDate != nil && !s.EndDate.After(*s.StartDate) {
			errs = append(errs, ValidationError{Field: "end_date", Message: "end date must be after the start date"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Category is a target for imported items
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	SectionName string `json:"section_name,omitempty" yaml:"section_name,omitempty"`
}

// MenuItem is the persisted form of an imported item
type MenuItem struct {
	ID           string           `json:"id"`
	CategoryID   string           `json:"category_id"`
	Name         string           `json:"name"`
	Description  *string          `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	IsAvailable  bool             `json:"is_available"`
	IsFeatured   bool             `json:"is_featured"`
	IsSpecial    bool             `json:"is_special"`
	SpecialStart *time.Time       `json:"special_start,omitempty"`
	SpecialEnd   *time.Time       `json:"special_end,omitempty"`
	SortOrder    int              `json:"sort_order"`
}
