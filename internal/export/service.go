package export

import "fmt"

// Export renders the idea packet in the requested format.
func Export(packet Packet, format Format) (*Result, error) {
	html, err := renderPacketHTML(packet)
	if err != nil {
		return nil, fmt.Errorf("render packet: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(packet.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, packet.Title)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
