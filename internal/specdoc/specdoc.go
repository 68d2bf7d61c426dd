// Package specdoc reads the functional specification document produced by
// the model and cleans generated code.
package specdoc

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/artifacts"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
)

// routePattern matches bullets such as **Login (`/login/`)**.
var routePattern = regexp.MustCompile("\\*\\*(.*?) \\(`/([^`]+)`\\)")

var fencePattern = regexp.MustCompile("(?is)```(?:python)?\\s*(.*?)```")

// ExtractRoutes returns one route per matched bullet in document order.
// Names are lower-cased with spaces replaced by underscores, paths are
// prefixed with "/". Names that map to the same artifact file stem are
// duplicates; the first one wins.
func ExtractRoutes(markdown string) []pipeline.Route {
	routes := []pipeline.Route{}
	seen := map[string]struct{}{}

	for _, m := range routePattern.FindAllStringSubmatch(markdown, -1) {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "_")
		stem := artifacts.Stem(name)
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		routes = append(routes, pipeline.Route{Name: name, Path: "/" + strings.TrimSpace(m[2])})
	}
	return routes
}

// ParseFile reads a specification document and extracts its routes.
func ParseFile(path string) ([]pipeline.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.New(failure.KindParse, "read spec document", fmt.Errorf("%s: %w", path, err))
	}
	return ExtractRoutes(string(data)), nil
}

// StripCodeFences returns the body of the first fenced block, or the text
// without a leading "python" line when there is no fence.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(strings.ToLower(text), "python\n") {
		_, rest, _ := strings.Cut(text, "\n")
		return strings.TrimSpace(rest)
	}
	return text
}
