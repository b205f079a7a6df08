package tools

import (
	"context"
	"strings"
)

// PageContentToolName is the dynamic tool injected when a chat request
// carries page context in its metadata.
const PageContentToolName = "getPageContent"

// Section markers the page-context format documents.
const (
	tablesMarker = "--- Data Tables ---"
	formsMarker  = "--- Form Fields ---"
)

// NewPageContentTool returns a per-request tool that serves slices of
// the caller-supplied page snapshot. The optional section argument
// narrows the result to tables, forms, or headings.
func NewPageContentTool(pageContext string) Tool {
	return NewFuncTool(
		PageContentToolName,
		"Get the content of the page the user is currently viewing. Use the section argument to narrow the result.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"section": map[string]any{
					"type":        "string",
					"enum":        []any{"all", "tables", "forms", "headings"},
					"description": "Which part of the page to return",
				},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			section, _ := args["section"].(string)
			return extractPageSection(pageContext, section), nil
		},
	)
}

func extractPageSection(pageContext, section string) string {
	switch section {
	case "tables":
		return extractMarkedSection(pageContext, tablesMarker)
	case "forms":
		return extractMarkedSection(pageContext, formsMarker)
	case "headings":
		return extractHeadings(pageContext)
	default:
		return pageContext
	}
}

// extractMarkedSection returns the lines from the marker up to the
// next "--- " marker line, or the end of the context.
func extractMarkedSection(pageContext, marker string) string {
	lines := strings.Split(pageContext, "\n")
	var out []string
	inSection := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == marker {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(trimmed, "--- ") {
			break
		}
		if inSection {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func extractHeadings(pageContext string) string {
	var out []string
	for _, line := range strings.Split(pageContext, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return strings.Join(out, "\n")
}
