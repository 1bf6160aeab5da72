package dedup

import (
	"strings"
)

const (
	defaultSplitTarget = 400
	defaultSplitMax    = 600
)

// SplitOptions configures oversized-content splitting.
type SplitOptions struct {
	TargetSize int // preferred fragment size in bytes
	MaxSize    int // hard upper bound per fragment
}

// DefaultSplitOptions returns the default fragment sizes.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TargetSize: defaultSplitTarget, MaxSize: defaultSplitMax}
}

// SplitContent breaks long content into fragments that ingest as separate
// memories. It splits on paragraph boundaries first, merges small
// paragraphs toward the target size, and hard-splits anything that still
// exceeds the maximum on sentence boundaries. Short content comes back
// as a single fragment.
func SplitContent(content string, opts SplitOptions) []string {
	if opts.TargetSize <= 0 {
		opts = DefaultSplitOptions()
	}
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= opts.MaxSize {
		return []string{content}
	}

	var fragments []string
	var accum string
	flush := func() {
		accum = strings.TrimSpace(accum)
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			fragments = append(fragments, hardSplit(accum, opts.MaxSize)...)
		} else {
			fragments = append(fragments, accum)
		}
		accum = ""
	}

	for _, para := range splitParagraphs(content) {
		if accum == "" {
			accum = para
			continue
		}
		if len(accum)+len(para)+2 <= opts.TargetSize {
			accum += "\n\n" + para
			continue
		}
		flush()
		accum = para
	}
	flush()

	return fragments
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// hardSplit cuts text that has no usable paragraph boundaries, preferring
// sentence ends, then spaces, then a hard byte cut.
func hardSplit(text string, maxSize int) []string {
	var out []string
	for len(text) > maxSize {
		cut := lastSentenceEnd(text[:maxSize])
		if cut <= 0 {
			cut = strings.LastIndexByte(text[:maxSize], ' ')
		}
		if cut <= 0 {
			cut = maxSize
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func lastSentenceEnd(s string) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				best = i + 1
			}
		}
	}
	return best
}
