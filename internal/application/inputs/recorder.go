// Package inputs implements recorded-input capture and replay. During a
// recording session every prompt answer is captured in memory; when the
// worker detaches, the answers are flushed to the well-known handoff file and
// the parent folds them into the auto-load entry. On replay the same answers
// are fed back through the prompter interface, so module config code cannot
// tell a replayed run from a live one.
package inputs

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/andrescamacho/polisbot/internal/domain/ports"
)

// Recorder accumulates prompt answers in memory until flushed
type Recorder struct {
	mu      sync.Mutex
	answers []string
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append records one answer
func (r *Recorder) Append(answer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, answer)
}

// Answers returns a copy of everything recorded so far
func (r *Recorder) Answers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.answers))
	copy(out, r.answers)
	return out
}

// Flush writes the recorded answers to the handoff file via temp rename
func (r *Recorder) Flush(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(r.answers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize recorded inputs: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write recorded inputs: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish recorded inputs: %w", err)
	}
	return nil
}

// Load reads a flushed answer list and removes the file; the handoff file is
// single-use by design.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recorded inputs: %w", err)
	}
	var answers []string
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("failed to parse recorded inputs: %w", err)
	}
	os.Remove(path)
	return answers, nil
}

// RecordingPrompter wraps a live prompter and records every answer it
// returns. Secrets are never recorded.
type RecordingPrompter struct {
	inner    ports.Prompter
	recorder *Recorder
}

// NewRecordingPrompter wraps the prompter
func NewRecordingPrompter(inner ports.Prompter, recorder *Recorder) *RecordingPrompter {
	return &RecordingPrompter{inner: inner, recorder: recorder}
}

func (p *RecordingPrompter) Read(prompt string) (string, error) {
	answer, err := p.inner.Read(prompt)
	if err == nil {
		p.recorder.Append(answer)
	}
	return answer, err
}

func (p *RecordingPrompter) ReadSecret(prompt string) (string, error) {
	return p.inner.ReadSecret(prompt)
}

func (p *RecordingPrompter) Choose(prompt string, options []string) (int, error) {
	choice, err := p.inner.Choose(prompt, options)
	if err == nil {
		p.recorder.Append(fmt.Sprintf("%d", choice))
	}
	return choice, err
}

func (p *RecordingPrompter) Confirm(prompt string) (bool, error) {
	answer, err := p.inner.Confirm(prompt)
	if err == nil {
		if answer {
			p.recorder.Append("y")
		} else {
			p.recorder.Append("n")
		}
	}
	return answer, err
}

// ReplayPrompter consumes pre-recorded answers from the front of a queue and
// falls back to the inner prompter once they run out. A detached worker is
// given a failing fallback because it must never block on a terminal.
type ReplayPrompter struct {
	mu       sync.Mutex
	queue    []string
	fallback ports.Prompter
}

// NewReplayPrompter builds a prompter over the recorded queue
func NewReplayPrompter(queue []string, fallback ports.Prompter) *ReplayPrompter {
	copied := make([]string, len(queue))
	copy(copied, queue)
	return &ReplayPrompter{queue: copied, fallback: fallback}
}

// Remaining reports how many answers are left unconsumed
func (p *ReplayPrompter) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *ReplayPrompter) next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	head := p.queue[0]
	p.queue = p.queue[1:]
	return head, true
}

func (p *ReplayPrompter) Read(prompt string) (string, error) {
	if answer, ok := p.next(); ok {
		return answer, nil
	}
	return p.fallback.Read(prompt)
}

func (p *ReplayPrompter) ReadSecret(prompt string) (string, error) {
	return p.fallback.ReadSecret(prompt)
}

func (p *ReplayPrompter) Choose(prompt string, options []string) (int, error) {
	if answer, ok := p.next(); ok {
		var choice int
		if _, err := fmt.Sscanf(answer, "%d", &choice); err != nil {
			return 0, fmt.Errorf("recorded answer %q is not a choice index: %w", answer, err)
		}
		if choice < 0 || choice >= len(options) {
			return 0, fmt.Errorf("recorded choice %d out of range [0,%d)", choice, len(options))
		}
		return choice, nil
	}
	return p.fallback.Choose(prompt, options)
}

func (p *ReplayPrompter) Confirm(prompt string) (bool, error) {
	if answer, ok := p.next(); ok {
		return answer == "y" || answer == "yes", nil
	}
	return p.fallback.Confirm(prompt)
}

// FailingPrompter rejects every prompt; installed as the replay fallback in
// detached workers.
type FailingPrompter struct{}

func (FailingPrompter) Read(prompt string) (string, error) {
	return "", fmt.Errorf("prompt %q reached a detached worker", prompt)
}

func (FailingPrompter) ReadSecret(prompt string) (string, error) {
	return "", fmt.Errorf("prompt %q reached a detached worker", prompt)
}

func (FailingPrompter) Choose(prompt string, options []string) (int, error) {
	return 0, fmt.Errorf("prompt %q reached a detached worker", prompt)
}

func (FailingPrompter) Confirm(prompt string) (bool, error) {
	return false, fmt.Errorf("prompt %q reached a detached worker", prompt)
}
