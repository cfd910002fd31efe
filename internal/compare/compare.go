package compare

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"quill/internal/dataset"
	"quill/internal/services"
)

// Op marks a diff line.
type Op byte

const (
	OpEqual  Op = ' '
	OpAdd    Op = '+'
	OpRemove Op = '-'
)

// MarshalText renders the op as its diff marker.
func (o Op) MarshalText() ([]byte, error) {
	return []byte{byte(o)}, nil
}

// Line is one line of the auto to manual diff.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Counts sizes one text.
type Counts struct {
	Words int `json:"words"`
	Chars int `json:"chars"`
}

// Report is the divergence between an auto cleanup and a manual cleanup.
type Report struct {
	SampleID     string `json:"sample_id"`
	SampleNumber int    `json:"sample_number"`
	Auto         Counts `json:"auto"`
	Manual       Counts `json:"manual"`
	WordDiff     int    `json:"word_diff"`
	CharDiff     int    `json:"char_diff"`
	// Percentages are relative to the auto cleanup and zero when it is empty.
	WordPercent float64 `json:"word_percent"`
	CharPercent float64 `json:"char_percent"`
	Added       int     `json:"added"`
	Removed     int     `json:"removed"`
	Unchanged   int     `json:"unchanged"`
	// Similarity is the cosine similarity of word frequencies.
	Similarity float64 `json:"similarity"`
	Lines      []Line  `json:"lines"`
}

// Text compares an automated cleanup against a manual one.
func Text(auto, manual string) Report {
	r := Report{Auto: count(auto), Manual: count(manual)}
	r.WordDiff = r.Manual.Words - r.Auto.Words
	r.CharDiff = r.Manual.Chars - r.Auto.Chars
	r.WordPercent = percent(r.WordDiff, r.Auto.Words)
	r.CharPercent = percent(r.CharDiff, r.Auto.Chars)
	r.Similarity = similarity(auto, manual)
	r.Lines = diffLines(splitLines(auto), splitLines(manual))
	for _, l := range r.Lines {
		switch l.Op {
		case OpAdd:
			r.Added++
		case OpRemove:
			r.Removed++
		default:
			r.Unchanged++
		}
	}
	return r
}

// Sample compares the embedded cleanups of s. Both must be present and the
// manual cleanup must not be a placeholder.
func Sample(s dataset.Sample) (Report, error) {
	if strings.TrimSpace(s.Content.AutoCleanup) == "" {
		return Report{}, services.Wrap(services.ErrValidation, "compare", "sample", fmt.Sprintf("sample %d has no auto cleanup", s.SampleNumber), nil)
	}
	if !dataset.IsManualCleanupDone(s.Content.ManualCleanup) {
		return Report{}, services.Wrap(services.ErrValidation, "compare", "sample", fmt.Sprintf("sample %d has no manual cleanup", s.SampleNumber), nil)
	}
	r := Text(s.Content.AutoCleanup, s.Content.ManualCleanup)
	r.SampleID = s.ID
	r.SampleNumber = s.SampleNumber
	return r, nil
}

func count(text string) Counts {
	return Counts{Words: len(strings.Fields(text)), Chars: utf8.RuneCountInString(text)}
}

func percent(diff, base int) float64 {
	if base == 0 {
		return 0
	}
	return float64(diff) / float64(base) * 100
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// diffLines walks a longest-common-subsequence table so unchanged lines
// anchor the diff and removals print before additions.
func diffLines(a, b []string) []Line {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	out := make([]Line, 0, max(n, m))
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, Line{Op: OpEqual, Text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, Line{Op: OpRemove, Text: a[i]})
			i++
		default:
			out = append(out, Line{Op: OpAdd, Text: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, Line{Op: OpRemove, Text: a[i]})
	}
	for ; j < m; j++ {
		out = append(out, Line{Op: OpAdd, Text: b[j]})
	}
	return out
}

// String renders the diff in unified style without hunk headers.
func (r Report) String() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteByte(byte(l.Op))
		b.WriteByte(' ')
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
