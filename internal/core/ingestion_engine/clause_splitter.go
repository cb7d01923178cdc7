package ingestion_engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const maxHeadingRunes = 120

// headingRe matches lines such as "Section 4.2.1 Surgical Procedures", "ARTICLE IV: Exclusions"
// or "3.1 Waiting Periods". Group 1 is the numbered prefix, group 2 the title.
var headingRe = regexp.MustCompile(`^((?:Section|Article|Clause|Part|Chapter|Schedule|SECTION|ARTICLE|CLAUSE|PART|CHAPTER|SCHEDULE)\s+(?:[0-9]+|[IVXLC]+)(?:\.[0-9]+)*|[0-9]+(?:\.[0-9]+)+)\.?(?:\s*[:.)\-–]\s*|\s+|$)(.*)$`)

// headingLabel returns the clause label for a heading line, or "" if line is body text.
func headingLabel(line string) string {
	if utf8.RuneCountInString(line) > maxHeadingRunes {
		return ""
	}
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	num := strings.TrimSpace(m[1])
	title := strings.TrimSpace(m[2])
	if title != "" && unicode.IsDigit(rune(num[0])) {
		if first, _ := utf8.DecodeRuneInString(title); !unicode.IsUpper(first) {
			return ""
		}
	}
	if title == "" {
		return num
	}
	return num + " - " + title
}

// streamClauses groups fragments into clauses. A heading starts a new clause labelled
// after it; sections longer than targetTokens are split, keeping overlapTokens of tail.
// pageBreak fragments advance the page counter and never appear in clause text.
func (i *DocumentIngestor) streamClauses(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan clause {
	out := make(chan clause, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf       []string
			tokSum    int
			fresh     int
			pos       int
			label     string
			page      = 1
			startPage = 1
		)

		flush := func() error {
			if fresh == 0 {
				return nil
			}
			l := label
			if l == "" {
				l = fmt.Sprintf("Clause %d", pos+1)
			}
			c := clause{Pos: pos, Label: l, Text: strings.Join(buf, "\n"), Page: startPage, TokenCnt: tokSum}
			pos++

			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}

			buf, tokSum = overlapTail(buf, overlapTokens)
			fresh = 0
			startPage = page
			return nil
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if frag == pageBreak {
				page++
				if fresh == 0 {
					startPage = page
				}
				continue
			}

			if h := headingLabel(frag); h != "" {
				if err := flush(); err != nil {
					return err
				}
				buf, tokSum = buf[:0], 0
				label = h
				startPage = page
			}

			buf = append(buf, frag)
			tokSum += approxTokens(frag)
			fresh++

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		return flush()
	})

	return out
}

// overlapTail keeps a suffix of buf whose token sum is about overlapTokens.
func overlapTail(buf []string, overlapTokens int) ([]string, int) {
	if overlapTokens <= 0 {
		return buf[:0], 0
	}
	var keep []string
	remain := overlapTokens
	for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
		keep = append([]string{buf[j]}, keep...)
		remain -= approxTokens(buf[j])
	}
	sum := 0
	for _, s := range keep {
		sum += approxTokens(s)
	}
	return keep, sum
}

// approxTokens is a cheap token estimator (~4 chars per token).
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
