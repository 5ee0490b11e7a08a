// Package prompt builds the system instruction sent with every model call.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

const (
	contextHeader = "=== OFFICIAL NDIS DOCUMENTATION EXCERPTS ==="
	contextFooter = "==========================================="
)

//go:embed static/modes.yaml
var builtinModes []byte

type templates struct {
	Base  string            `yaml:"base"`
	Modes map[string]string `yaml:"modes"`
}

// Assembler holds the base policy and per-mode task framings. It is
// immutable after construction and safe for concurrent use.
type Assembler struct {
	base    string
	framing map[domain.Mode]string
}

var defaultAssembler = mustParse(builtinModes)

// Default returns the assembler built from the embedded templates.
func Default() *Assembler {
	return defaultAssembler
}

// Parse builds an Assembler from YAML with a "base" block and a "modes" map.
func Parse(data []byte) (*Assembler, error) {
	var t templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	if strings.TrimSpace(t.Base) == "" {
		return nil, fmt.Errorf("parsing prompt templates: base policy is empty")
	}

	a := &Assembler{
		base:    strings.TrimSpace(t.Base),
		framing: make(map[domain.Mode]string, len(t.Modes)),
	}
	for mode, text := range t.Modes {
		a.framing[domain.Mode(mode)] = strings.TrimSpace(text)
	}
	return a, nil
}

func mustParse(data []byte) *Assembler {
	a, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return a
}

// BuildSystemPrompt returns base policy, task framing and the context block,
// separated by blank lines. An unknown mode gets no framing.
func (a *Assembler) BuildSystemPrompt(mode domain.Mode, context string) string {
	var b strings.Builder

	b.WriteString(a.base)
	b.WriteString("\n\n")

	if framing, ok := a.framing[mode]; ok {
		b.WriteString(framing)
		b.WriteString("\n\n")
	}

	b.WriteString(contextHeader)
	b.WriteString("\n")
	b.WriteString(context)
	b.WriteString("\n")
	b.WriteString(contextFooter)

	return b.String()
}

// Modes lists the modes that have a task framing.
func (a *Assembler) Modes() []domain.Mode {
	out := make([]domain.Mode, 0, len(a.framing))
	for m := range a.framing {
		out = append(out, m)
	}
	return out
}

// BuildSystemPrompt uses the default assembler.
func BuildSystemPrompt(mode domain.Mode, context string) string {
	return defaultAssembler.BuildSystemPrompt(mode, context)
}
