package gateway

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// parsePosixListing normalizes `ls -la` output. Unparseable lines and
// the "." and ".." entries are skipped.
func parsePosixListing(out string) []wsproto.FileEntry {
	var entries []wsproto.FileEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		fields := splitListingFields(line, 9)
		if len(fields) < 9 {
			continue
		}
		name := fields[8]
		if name == "." || name == ".." {
			continue
		}
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		kind := "file"
		if strings.HasPrefix(fields[0], "d") {
			kind = "directory"
		}
		entries = append(entries, wsproto.FileEntry{Name: name, Kind: kind, Size: size})
	}
	return entries
}

// splitListingFields splits on runs of whitespace into at most max
// fields, keeping whitespace intact inside the final field so file
// names with spaces survive.
func splitListingFields(line string, max int) []string {
	var fields []string
	rest := line
	for len(fields) < max-1 {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:idx])
		rest = rest[idx:]
	}
	if rest = strings.TrimLeft(rest, " \t"); rest != "" {
		fields = append(fields, rest)
	}
	return fields
}

// parsePowershellListing normalizes Get-ChildItem CSV output
// (Name,Length,PSIsContainer).
func parsePowershellListing(out string) ([]wsproto.FileEntry, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(out)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing listing: %w", err)
	}
	var entries []wsproto.FileEntry
	for i, rec := range records {
		if i == 0 || len(rec) < 3 {
			// Header row.
			continue
		}
		entry := wsproto.FileEntry{Name: rec[0], Kind: "file"}
		if strings.EqualFold(rec[2], "true") {
			entry.Kind = "directory"
		} else if size, err := strconv.ParseInt(rec[1], 10, 64); err == nil {
			entry.Size = size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
