package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/menkyo-prep/sign-engine/pkg/models"
)

var jsonOutput bool

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatImageResult renders a resolution result for the terminal.
//
//	326  https://cdn.example/326.svg
//	  matched by sign_code (catalog)
//	  Wikimedia Commons · Public domain
func formatImageResult(r *models.ImageResult) string {
	if r == nil {
		return "no image found\n"
	}

	var b strings.Builder
	code := r.SignCode
	if code == "" {
		code = "-"
	}
	fmt.Fprintf(&b, "%s  %s\n", code, r.StorageURL)
	fmt.Fprintf(&b, "  matched by %s (%s)", r.MatchedBy, r.Source)
	if r.LowConfidence {
		b.WriteString(" low confidence")
	}
	b.WriteString("\n")

	var credits []string
	for _, s := range []string{r.Attribution, r.LicenseInfo, r.ArtistName} {
		if s != "" {
			credits = append(credits, s)
		}
	}
	if len(credits) > 0 {
		fmt.Fprintf(&b, "  %s\n", strings.Join(credits, " · "))
	}
	if r.SourcePageURL != "" {
		fmt.Fprintf(&b, "  %s\n", r.SourcePageURL)
	}
	return b.String()
}

func writeResult(w io.Writer, r *models.ImageResult) error {
	if jsonOutput {
		return printJSON(w, r)
	}
	_, err := io.WriteString(w, formatImageResult(r))
	return err
}
