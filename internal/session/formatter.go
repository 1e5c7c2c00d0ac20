package session

import (
	"fmt"
	"strings"

	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/hierarchy"
	"github.com/mnemex/mnemex/internal/token"
)

// tierLabel maps index tier names to human-readable prompt labels.
func tierLabel(tier string) string {
	switch tier {
	case "strategic":
		return "rule"
	case "tactical":
		return "pattern"
	case "episodic":
		return "episode"
	default:
		return tier
	}
}

// formatMemories renders recalled memories as a prompt section, most
// relevant first.
func formatMemories(memories []hierarchy.Recalled) string {
	if len(memories) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Relevant memories\n")
	for _, m := range memories {
		fmt.Fprintf(&sb, "- [%s] %s\n", tierLabel(m.Tier), m.Summary)
	}
	return sb.String()
}

// formatContext renders working-context items in insertion order.
func formatContext(items []buffer.Item) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Working context\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "- %s\n", it.Content)
	}
	return sb.String()
}

// buildSystemPrompt assembles the memory-augmented system prompt within the
// token budget. Memories are added before working context; within each
// section, entries are dropped from the end when the budget runs out.
func buildSystemPrompt(memories []hierarchy.Recalled, items []buffer.Item, budget int, counter token.Counter) string {
	const preamble = "You are an assistant with persistent memory. " +
		"Use the memories and working context below when they are relevant; ignore them when they are not.\n"

	remaining := budget - counter.Count(preamble)
	if remaining <= 0 {
		return preamble
	}

	memSection := fitSection(formatMemories(memories), remaining, counter)
	remaining -= counter.Count(memSection)

	ctxSection := fitSection(formatContext(items), remaining, counter)

	var sb strings.Builder
	sb.WriteString(preamble)
	if memSection != "" {
		sb.WriteString("\n")
		sb.WriteString(memSection)
	}
	if ctxSection != "" {
		sb.WriteString("\n")
		sb.WriteString(ctxSection)
	}
	return sb.String()
}

// fitSection drops trailing lines from a section until it fits the budget.
// The header line alone is never worth keeping.
func fitSection(section string, budget int, counter token.Counter) string {
	if section == "" || budget <= 0 {
		return ""
	}
	if counter.Count(section) <= budget {
		return section
	}

	lines := strings.Split(strings.TrimRight(section, "\n"), "\n")
	for len(lines) > 2 {
		lines = lines[:len(lines)-1]
		candidate := strings.Join(lines, "\n") + "\n"
		if counter.Count(candidate) <= budget {
			return candidate
		}
	}
	return ""
}
