// Package artifacts names the files a run reads and writes under the
// project root.
//
//	outputs/functional_specifications.md
//	outputs/final_state.json
//	tests/selenium/test_<name>.py
//	testcase_output/output_test_<name>.txt
//	screenshots/before_<name>.png, screenshots/after_<name>.png
//	reports/final_report_<name>.md
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	outputsDir     = "outputs"
	testsDir       = "tests/selenium"
	testOutputDir  = "testcase_output"
	screenshotsDir = "screenshots"
	reportsDir     = "reports"
)

// Layout resolves artifact paths relative to Root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) join(elem ...string) string {
	return filepath.Join(append([]string{l.Root}, elem...)...)
}

// SpecDocument is the persisted functional specification.
func (l Layout) SpecDocument() string {
	return l.join(outputsDir, "functional_specifications.md")
}

// FinalState is the serialized terminal RunState.
func (l Layout) FinalState() string {
	return l.join(outputsDir, "final_state.json")
}

// TestScript is the generated Selenium script for a route. Route names
// pass through Stem in every per-route path.
func (l Layout) TestScript(name string) string {
	return l.join(testsDir, "test_"+Stem(name)+".py")
}

// TestOutput is the captured output of running script.
func (l Layout) TestOutput(script string) string {
	stem := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	return l.join(testOutputDir, "output_"+stem+".txt")
}

// ScreenshotBefore is where a generated script saves its first screenshot.
func (l Layout) ScreenshotBefore(name string) string {
	return l.join(screenshotsDir, "before_"+Stem(name)+".png")
}

// ScreenshotAfter is where a generated script saves its second screenshot.
func (l Layout) ScreenshotAfter(name string) string {
	return l.join(screenshotsDir, "after_"+Stem(name)+".png")
}

// Report is the final Markdown report for a route.
func (l Layout) Report(name string) string {
	return l.join(reportsDir, "final_report_"+Stem(name)+".md")
}

// ReportsDir holds all reports.
func (l Layout) ReportsDir() string {
	return l.join(reportsDir)
}

// Rel returns path relative to Root with forward slashes, as generated
// scripts see it when run from the project root. Paths outside Root are
// returned unchanged.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// EnsureDirs creates every artifact directory.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{outputsDir, testsDir, testOutputDir, screenshotsDir, reportsDir} {
		if err := os.MkdirAll(l.join(dir), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
