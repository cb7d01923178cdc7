package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/clausewise/internal/core"
)

// pageBreak is sent between the fragments of consecutive pages.
const pageBreak = "\f"

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("no extractable text")

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool, maxFragmentLen int) *DocconvExtractor {
	if maxFragmentLen <= 0 {
		maxFragmentLen = DefaultIngestConfig().MaxFragmentLen
	}
	return &DocconvExtractor{useReadability: useReadability, maxFragmentLen: maxFragmentLen}
}

// ExtractText converts data to text and streams it as trimmed line fragments.
// Form feeds in the converted text become pageBreak fragments.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error) {
	mediaType := normalizeMediaType(contentType)
	if mediaType == "" {
		return nil, fmt.Errorf("extract: missing content type")
	}

	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		text, err := e.convert(data, mediaType)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("extract %s: %w", mediaType, ErrNoText)
		}

		send := func(s string) error {
			select {
			case out <- s:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for p, page := range strings.Split(text, pageBreak) {
			if p > 0 {
				if err := send(pageBreak); err != nil {
					return err
				}
			}
			for _, line := range strings.Split(page, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				for _, frag := range splitRunes(line, e.maxFragmentLen) {
					if err := send(frag); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})

	return out, nil
}

func (e *DocconvExtractor) convert(data []byte, mediaType string) (string, error) {
	switch mediaType {
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return string(data), nil
	}
	res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", mediaType, err)
	}
	return res.Body, nil
}

func normalizeMediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// MediaTypeFor resolves the media type for an upload, falling back to the file
// extension when the declared type is missing or generic.
func MediaTypeFor(name, declared string) string {
	mt := normalizeMediaType(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if byExt := docconv.MimeTypeByExtension(name); byExt != "" && byExt != "application/octet-stream" {
		return byExt
	}
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".md"):
		return "text/markdown"
	case strings.HasSuffix(strings.ToLower(name), ".txt"):
		return "text/plain"
	}
	if mt == "" {
		return "application/octet-stream"
	}
	return mt
}

func splitRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	out := make([]string, 0, len(r)/n+1)
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
