package service

import (
	"bufio"
	"os"
	"strings"
)

// ReadWatchlist parses a watchlist file: one URL per line, blank lines and
// #-comments ignored, duplicates dropped keeping first occurrence.
func ReadWatchlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	urls := make([]string, 0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
