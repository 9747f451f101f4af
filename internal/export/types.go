// Package export renders an idea's kernel packet as HTML or PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Packet is the material for one idea export.
type Packet struct {
	Title            string
	Status           string
	KernelCompletion int
	ObjectiveTitle   string
	Author           string
	UpdatedAt        time.Time
	Sections         []Section
}

// Section is one kernel file rendered into the packet.
type Section struct {
	Heading  string
	Markdown string
	Complete bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
