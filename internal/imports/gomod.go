package imports

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// GoModulePath reads the module path from <projectRoot>/go.mod. Returns ""
// when the project has no go.mod; Go imports then all resolve as external.
func GoModulePath(projectRoot string) string {
	f, err := os.Open(filepath.Join(projectRoot, "go.mod"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}
