// Package report renders scan reports for humans.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
)

const (
	noTitle = "No title"
	noLink  = "No link"
)

// Markdown renders the whole report.
func Markdown(rep *scan.Report) string {
	var b strings.Builder
	WriteHeader(&b, rep)
	for _, o := range rep.Regions {
		WriteRegion(&b, o)
	}
	return b.String()
}

// WriteHeader writes the run summary. For a run that is still in progress
// only the title is written.
func WriteHeader(w io.Writer, rep *scan.Report) {
	fmt.Fprintf(w, "# Scan %s\n\n", rep.ID)

	switch {
	case rep.State == scan.Aborted:
		fmt.Fprintf(w, "Scan aborted: %s\n", rep.Error)
	case rep.NoObjects():
		fmt.Fprintln(w, "No objects detected in the image.")
	case rep.State == scan.Done:
		fmt.Fprintf(w, "Detected %d objects.\n", len(rep.Regions))
	}
}

// WriteRegion writes one region section. Objects are numbered from 1.
func WriteRegion(w io.Writer, o scan.RegionOutcome) {
	n := o.Index + 1
	fmt.Fprintf(w, "\n## Object %d%s\n\n", n, describe(o.Region))
	if o.Caption != "" {
		fmt.Fprintf(w, "_%s_\n\n", oneLine(o.Caption))
	}

	switch o.Status {
	case scan.StatusCropFailed:
		fmt.Fprintf(w, "Crop failed: %s\n", o.Error)
		return
	case scan.StatusUploadFailed:
		fmt.Fprintf(w, "Upload failed: %s\n", o.Error)
		return
	}

	fmt.Fprintf(w, "Hosted link: %s\n\n", o.HostedURL)

	switch o.Status {
	case scan.StatusSearchFailed, scan.StatusMalformed:
		fmt.Fprintf(w, "Search failed: %s\n", o.Error)
	case scan.StatusNoMatches:
		if o.TotalMatches > 0 {
			fmt.Fprintf(w, "No retail matches among %d results.\n", o.TotalMatches)
		} else {
			fmt.Fprintln(w, "No matches found.")
		}
	default:
		fmt.Fprintf(w, "Results for Object %d:\n", n)
		for _, m := range o.Matches {
			writeMatch(w, m)
		}
	}
}

func writeMatch(w io.Writer, m domain.VisualMatch) {
	title := oneLine(m.Title)
	if title == "" {
		title = noTitle
	}
	link := strings.TrimSpace(m.Link)
	if link == "" {
		link = noLink
	}
	fmt.Fprintf(w, "- **%s**: [Link](%s)\n", title, link)
}

func describe(r domain.DetectedRegion) string {
	label := r.Label
	if label == "" {
		label = fmt.Sprintf("class %d", r.ClassID)
	}
	return fmt.Sprintf(" (%s, %.0f%%)", label, r.Confidence*100)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
