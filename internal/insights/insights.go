// Package insights asks a language model for a short written summary of
// recent door activity.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"accessdash/internal/activity"
	"accessdash/internal/breaker"
)

var ErrDisabled = errors.New("insights: disabled")

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Insight struct {
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	Days        int       `json:"days"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Service struct {
	gen     Generator
	model   string
	timeout time.Duration
	now     func() time.Time
}

// NewService returns a Service; a nil gen yields one whose Summarize
// always fails with ErrDisabled.
func NewService(gen Generator, model string, timeout time.Duration) *Service {
	return &Service{gen: gen, model: model, timeout: timeout, now: time.Now}
}

// Guard routes gen through b so a model host that keeps failing is
// skipped with breaker.ErrOpen until b lets a probe through.
func Guard(gen Generator, b *breaker.Breaker) Generator {
	if gen == nil || b == nil {
		return gen
	}
	return guardedGenerator{gen: gen, breaker: b}
}

type guardedGenerator struct {
	gen     Generator
	breaker *breaker.Breaker
}

func (g guardedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := g.breaker.Do(func() error {
		var err error
		text, err = g.gen.Generate(ctx, prompt)
		return err
	})
	return text, err
}

func (s *Service) Enabled() bool {
	return s != nil && s.gen != nil
}

func (s *Service) Summarize(ctx context.Context, summary activity.Summary) (Insight, error) {
	if !s.Enabled() {
		return Insight{}, ErrDisabled
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.gen.Generate(ctx, BuildPrompt(summary))
	if err != nil {
		return Insight{}, fmt.Errorf("generate insight: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Insight{}, errors.New("generate insight: empty response")
	}
	return Insight{
		Text:        text,
		Model:       s.model,
		Days:        len(summary.Days),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// BuildPrompt renders the summary as plain facts. Map-backed sections are
// sorted so identical summaries give identical prompts.
func BuildPrompt(summary activity.Summary) string {
	var b strings.Builder
	b.WriteString("You are a security analyst for an RFID door access system.\n")
	b.WriteString("Summarize the activity below in at most five short bullet points. ")
	b.WriteString("Call out unusual denials, busy doors and quiet days. Do not invent data.\n\n")

	fmt.Fprintf(&b, "Window: %s to %s\n", summary.From.Format(time.DateOnly), summary.To.AddDate(0, 0, -1).Format(time.DateOnly))
	fmt.Fprintf(&b, "Totals: %d events, %d granted, %d denied, %d distinct cards\n",
		summary.Totals.Total, summary.Totals.Granted, summary.Totals.Denied, summary.UniqueCards)

	b.WriteString("\nPer day:\n")
	for _, day := range summary.Days {
		fmt.Fprintf(&b, "- %s: %d granted, %d denied\n", day.Date, day.Granted, day.Denied)
	}

	b.WriteString("\nPer door:\n")
	for _, door := range summary.Doors {
		fmt.Fprintf(&b, "- %s (%s): %d granted, %d denied\n", door.Name, door.DoorID, door.Granted, door.Denied)
	}

	if len(summary.DeniedReasons) > 0 {
		reasons := make([]string, 0, len(summary.DeniedReasons))
		for reason := range summary.DeniedReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		b.WriteString("\nDenial reasons:\n")
		for _, reason := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", reason, summary.DeniedReasons[reason])
		}
	}
	return b.String()
}
