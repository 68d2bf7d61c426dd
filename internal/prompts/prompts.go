// Package prompts holds the embedded prompt templates sent to the model.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	lcprompts "github.com/tmc/langchaingo/prompts"
)

// ErrMissingPlaceholder is returned when a template variable has no value.
var ErrMissingPlaceholder = errors.New("missing template placeholder")

//go:embed templates/*.md
var templateFS embed.FS

// Template pairs a system prompt with the fixed human instruction sent
// alongside it.
type Template struct {
	Name        string
	System      lcprompts.PromptTemplate
	Instruction string
}

// Render fills the system prompt. Every declared variable must be present
// in vars; extra keys are ignored.
func (t Template) Render(vars map[string]any) (string, error) {
	var missing []string
	for _, v := range t.System.InputVariables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s needs %s", ErrMissingPlaceholder, t.Name, strings.Join(missing, ", "))
	}

	out, err := t.System.Format(vars)
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name, err)
	}
	return out, nil
}

func mustLoad(name, file, instruction string, vars ...string) Template {
	body, err := templateFS.ReadFile("templates/" + file)
	if err != nil {
		panic(fmt.Sprintf("prompt template %s: %v", file, err))
	}
	return Template{
		Name:        name,
		System:      lcprompts.NewPromptTemplate(string(body), vars),
		Instruction: instruction,
	}
}

var (
	// SpecExtraction turns landing-page markup into a functional specification.
	SpecExtraction = mustLoad("spec_extraction", "spec_extraction.md",
		"Get the functional specifications from the given html code.",
		"html_source")

	// TestScript turns a page's markup into a Selenium script.
	TestScript = mustLoad("test_script", "test_script.md",
		"Generate syntactically and semantically accurate selenium testcases for the given page.",
		"page_name", "path", "base_url", "html_content", "screenshot_before", "screenshot_after")

	// Report summarizes a route's specification, script and run output.
	Report = mustLoad("report", "report.md",
		"Generate concise report based on the information provided information.",
		"page_name", "spec_content", "test_code", "test_output", "screenshot_before", "screenshot_after")
)
