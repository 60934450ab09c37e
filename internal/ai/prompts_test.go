package ai

import (
	"strings"
	"sync"
	"testing"
)

func TestDefaultPromptRender(t *testing.T) {
	p := NewPromptTemplate("")

	if p.Source() != "default-"+PromptVersion {
		t.Errorf("unexpected source %q", p.Source())
	}

	got := p.Render("Jane Doe\nGo developer")
	if !strings.HasSuffix(got, "Resume:\nJane Doe\nGo developer\n") {
		t.Errorf("resume text not appended after marker:\n%s", got)
	}
	if !strings.HasPrefix(got, "\nYou are a professional resume reviewer.\n") {
		t.Errorf("prompt should start with reviewer instruction:\n%s", got)
	}
	for _, key := range []string{`"score"`, `"positives"`, `"improvements"`} {
		if !strings.Contains(got, key) {
			t.Errorf("prompt missing key %s", key)
		}
	}
}

func TestRenderLeavesFormatVerbsInResume(t *testing.T) {
	p := NewPromptTemplate("")
	got := p.Render("Grew revenue 40%s and %d users")
	if !strings.HasSuffix(got, "Grew revenue 40%s and %d users\n") {
		t.Errorf("resume text must be inserted verbatim, got:\n%s", got)
	}
}

func TestEmptyResumeStillRenders(t *testing.T) {
	got := NewPromptTemplate("").Render("")
	if !strings.HasSuffix(got, "Resume:\n\n") {
		t.Errorf("empty resume should leave the marker last, got:\n%s", got)
	}
}

func TestCustomPromptTemplate(t *testing.T) {
	p := NewPromptTemplate("Review this:\n%s\nReply in JSON.")
	if p.Source() != "file" {
		t.Errorf("expected file source, got %q", p.Source())
	}
	if got := p.Render("CV"); got != "Review this:\nCV\nReply in JSON." {
		t.Errorf("unexpected render %q", got)
	}

	invalid := NewPromptTemplate("no placeholder here")
	if invalid.Source() != "default-"+PromptVersion {
		t.Error("invalid custom template should fall back to the default")
	}
}

func TestPromptTemplateSet(t *testing.T) {
	p := NewPromptTemplate("")

	if err := p.Set("missing placeholder"); err == nil {
		t.Fatal("expected error for template without placeholder")
	}
	if p.Source() != "default-"+PromptVersion {
		t.Error("failed Set must keep the previous template")
	}

	if err := p.Set("A %s B"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if got := p.Render("x"); got != "A x B" {
		t.Errorf("unexpected render after Set: %q", got)
	}
}

func TestPromptTemplateConcurrentSwap(t *testing.T) {
	p := NewPromptTemplate("")
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = p.Set("Swap %s")
				return
			}
			_ = p.Render("resume")
		}()
	}
	wg.Wait()
}
