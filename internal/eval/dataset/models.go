package dataset

import (
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

// MenuRecord is one labelled menu: the source files an operator would upload
// and the items a careful human transcribed from them.
type MenuRecord struct {
	ID         string `json:"id" parquet:"id"`
	Restaurant string `json:"restaurant" parquet:"restaurant,optional"`

	// Files are paths to PDFs or images, relative to the dataset file
	Files []string `json:"files" parquet:"files,list"`

	// Expected is the ground truth item list in menu order
	Expected []ExpectedItem `json:"expected" parquet:"expected,list"`
}

// ExpectedItem is a transcribed menu item
type ExpectedItem struct {
	Name string `json:"name" parquet:"name"`
	// Price is kept as written ("12.50"); empty when the menu shows none
	Price string `json:"price,omitempty" parquet:"price,optional"`
}

// PriceValue parses Price, returning nil when it is empty or unreadable
func (e ExpectedItem) PriceValue() *decimal.Decimal {
	p := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(e.Price), "$"))
	if p == "" {
		return nil
	}
	d, err := decimal.NewFromString(p)
	if err != nil {
		return nil
	}
	return &d
}

// ResolveFiles returns the record's file paths joined onto dir unless already absolute
func (r *MenuRecord) ResolveFiles(dir string) []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if f == "" {
			continue
		}
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		out = append(out, f)
	}
	return out
}

// Names lists the expected item names
func (r *MenuRecord) Names() []string {
	names := make([]string, len(r.Expected))
	for i, e := range r.Expected {
		names[i] = e.Name
	}
	return names
}
