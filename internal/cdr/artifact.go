package cdr

import (
	"fmt"
	"strings"
	"time"
)

const (
	filenamePrefix = "cdr_report_"
	filenameSuffix = ".csv"
	filenameLayout = "20060102_150405"
	contentTypeCSV = "text/csv"
)

// FileName names a saved report after the UTC second it was written.
func FileName(t time.Time) string {
	return filenamePrefix + t.UTC().Format(filenameLayout) + filenameSuffix
}

// parseFileName recovers the timestamp embedded by FileName.
func parseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filenamePrefix) || !strings.HasSuffix(name, filenameSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filenamePrefix), filenameSuffix)
	t, err := time.Parse(filenameLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CountLines counts lines that contain something other than whitespace.
func CountLines(content []byte) int {
	n := 0
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func reportTitle(days int) string {
	return fmt.Sprintf("CDR Report (%d days)", days)
}
