package dedup

import (
	"strings"
	"testing"
)

func TestSplitContentShort(t *testing.T) {
	got := SplitContent("a short note", DefaultSplitOptions())
	if len(got) != 1 || got[0] != "a short note" {
		t.Errorf("got %v", got)
	}
	if got := SplitContent("   ", DefaultSplitOptions()); got != nil {
		t.Errorf("blank content: got %v", got)
	}
}

func TestSplitContentParagraphs(t *testing.T) {
	paras := []string{
		strings.Repeat("alpha ", 60),
		strings.Repeat("beta ", 60),
		strings.Repeat("gamma ", 60),
	}
	content := strings.Join(paras, "\n\n")

	got := SplitContent(content, SplitOptions{TargetSize: 400, MaxSize: 600})
	if len(got) < 2 {
		t.Fatalf("got %d fragments, want several", len(got))
	}
	for i, f := range got {
		if len(f) > 600 {
			t.Errorf("fragment %d is %d bytes, over max", i, len(f))
		}
	}
}

func TestSplitContentMergesSmallParagraphs(t *testing.T) {
	content := "one.\n\ntwo.\n\nthree.\n\n" + strings.Repeat("filler sentence here. ", 40)
	got := SplitContent(content, SplitOptions{TargetSize: 400, MaxSize: 600})

	// The three tiny paragraphs merge into one fragment instead of three.
	if !strings.Contains(got[0], "one.") || !strings.Contains(got[0], "three.") {
		t.Errorf("small paragraphs not merged: %q", got[0])
	}
}

func TestSplitContentHardSplit(t *testing.T) {
	// One giant paragraph with sentence boundaries.
	content := strings.Repeat("this is a full sentence. ", 100)
	got := SplitContent(content, SplitOptions{TargetSize: 200, MaxSize: 300})

	if len(got) < 5 {
		t.Fatalf("got %d fragments", len(got))
	}
	for i, f := range got {
		if len(f) > 300 {
			t.Errorf("fragment %d is %d bytes, over max", i, len(f))
		}
		if i < len(got)-1 && !strings.HasSuffix(f, ".") {
			t.Errorf("fragment %d not cut on a sentence boundary: %q", i, f[len(f)-20:])
		}
	}
}

func TestSplitContentNoBoundaries(t *testing.T) {
	content := strings.Repeat("x", 1000)
	got := SplitContent(content, SplitOptions{TargetSize: 300, MaxSize: 300})
	for i, f := range got {
		if len(f) > 300 {
			t.Errorf("fragment %d is %d bytes", i, len(f))
		}
	}
	total := 0
	for _, f := range got {
		total += len(f)
	}
	if total != 1000 {
		t.Errorf("lost bytes: total = %d", total)
	}
}
