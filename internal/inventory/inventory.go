// Package inventory loads the list of volumes to migrate.
package inventory

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads a volume list file: one volume name per line, blank lines
// and '#' comments skipped.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading volume list %s: %w", path, err)
	}
	defer f.Close()

	var volumes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		volumes = append(volumes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading volume list %s: %w", path, err)
	}
	return volumes, nil
}

// Merge concatenates volume lists, dropping duplicates while preserving
// first-seen order. Dispatch order follows this order.
func Merge(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
