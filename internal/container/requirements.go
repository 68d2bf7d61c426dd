package container

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// requirementPattern keeps a package name with optional extras and drops any
// version specifier that follows.
var requirementPattern = regexp.MustCompile(`^([a-zA-Z0-9._-]+(?:\[.*?\])?)\s*(?:[<=>!~].*|$)`)

// ErrRequirementsNotFound is returned by CleanRequirements for a missing file.
var ErrRequirementsNotFound = errors.New("requirements file not found")

// CleanRequirementLine removes quotes and version specifiers from one line.
// Blank lines and comments are returned trimmed but otherwise unchanged.
func CleanRequirementLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return line
	}

	line = strings.NewReplacer(`"`, "", "'", "").Replace(line)
	if m := requirementPattern.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(line)
}

// CleanRequirements rewrites a requirements file in place, one cleaned line
// per input line.
func CleanRequirements(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRequirementsNotFound, path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		out.WriteString(CleanRequirementLine(scanner.Text()))
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, out.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
