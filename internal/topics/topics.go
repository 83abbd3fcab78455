package topics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/revisehq/cardsmith/internal/domain"
)

const (
	// minTopicChars filters out fragments too short to generate cards from.
	minTopicChars = 50

	// maxTitleChars caps the title taken from a topic's first line.
	maxTitleChars = 100

	// DefaultBatchSize groups topics per generation call.
	DefaultBatchSize = 3
)

var (
	pageMarker = regexp.MustCompile(`=== PAGE (\d+) ===`)

	// Topic boundaries: numbered headings ("3. Directive Principles") or
	// ALL CAPS heading lines.
	numberedHeading = regexp.MustCompile(`(?m)^\d+\.\s+[A-Z]`)
	capsHeading     = regexp.MustCompile(`(?m)^[A-Z][A-Z ]{9,}$`)
)

// Extract splits page-marked text into topics. Pages are segmented at heading
// boundaries; segments shorter than the minimum are dropped. When a document
// has no recognizable headings at all, whole pages become the topics so that
// unstructured material still flows through the pipeline.
func Extract(text string) []domain.Topic {
	pages := splitPages(text)

	var out []domain.Topic
	for _, p := range pages {
		for _, segment := range splitHeadings(p.content) {
			segment = strings.TrimSpace(segment)
			if len(segment) < minTopicChars {
				continue
			}
			out = append(out, domain.Topic{
				Title:       titleOf(segment, p.number),
				Content:     segment,
				Fingerprint: Fingerprint(segment),
				Page:        p.number,
			})
		}
	}
	if out != nil {
		return out
	}

	for _, p := range pages {
		content := strings.TrimSpace(p.content)
		if len(content) < minTopicChars {
			continue
		}
		out = append(out, domain.Topic{
			Title:       fmt.Sprintf("Page %d", p.number),
			Content:     content,
			Fingerprint: Fingerprint(content),
			Page:        p.number,
		})
	}
	return out
}

// Normalize collapses all whitespace to single spaces and case-folds, so that
// layout differences between overlapping chunks do not change the fingerprint.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Fingerprint returns the hex SHA-256 of the normalized content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// Batch groups topics into slices of at most size, preserving order.
func Batch(ts []domain.Topic, size int) [][]domain.Topic {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]domain.Topic
	for start := 0; start < len(ts); start += size {
		end := start + size
		if end > len(ts) {
			end = len(ts)
		}
		batches = append(batches, ts[start:end])
	}
	return batches
}

type page struct {
	number  int
	content string
}

func splitPages(text string) []page {
	markers := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(markers) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []page{{number: 1, content: text}}
	}

	pages := make([]page, 0, len(markers))
	for i, m := range markers {
		num, _ := strconv.Atoi(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		content := strings.TrimSpace(text[start:end])
		if content == "" {
			continue
		}
		pages = append(pages, page{number: num, content: content})
	}
	return pages
}

// splitHeadings cuts the page content at every heading start. The segment
// before the first heading is kept as well.
func splitHeadings(content string) []string {
	cuts := map[int]bool{}
	for _, loc := range numberedHeading.FindAllStringIndex(content, -1) {
		cuts[loc[0]] = true
	}
	for _, loc := range capsHeading.FindAllStringIndex(content, -1) {
		cuts[loc[0]] = true
	}
	if len(cuts) == 0 {
		return []string{content}
	}

	positions := make([]int, 0, len(cuts)+1)
	if !cuts[0] {
		positions = append(positions, 0)
	}
	for pos := range cuts {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	segments := make([]string, 0, len(positions))
	for i, start := range positions {
		end := len(content)
		if i+1 < len(positions) {
			end = positions[i+1]
		}
		segments = append(segments, content[start:end])
	}
	return segments
}

func titleOf(segment string, pageNum int) string {
	line, _, _ := strings.Cut(segment, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return fmt.Sprintf("Page %d Content", pageNum)
	}
	if len(line) > maxTitleChars {
		cut := maxTitleChars
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut]
	}
	return line
}
