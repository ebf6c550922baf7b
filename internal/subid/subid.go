// Package subid builds the sub-id range tables groot hands to
// newuidmap/newgidmap, reading /etc/subuid and /etc/subgid.
//
// The file format and per-user filtering follow the same shape as
// apptainer's internal/pkg/fakeroot config reader, cut down from its
// multi-source (system file + admin overrides + libsubid) model to the
// single plain-file model the source implementation (original_source/groot-ns.c's
// make_idmap) uses.
package subid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/groot-project/groot/pkg/grootlog"
)

// Range is one contiguous mapping triple: a block of nsIDStart..nsIDStart+Length-1
// in-namespace IDs mapped to hostIDStart..hostIDStart+Length-1 host IDs.
type Range struct {
	NSIDStart   uint32
	HostIDStart uint32
	Length      uint32
}

// Table is an ordered, non-overlapping, zero-based list of ranges, suitable
// for passing straight to newuidmap/newgidmap as "<ns> <host> <len>" triples.
type Table []Range

// Args renders the table as the flat argument list newuidmap/newgidmap expect.
func (t Table) Args() []string {
	args := make([]string, 0, len(t)*3)
	for _, r := range t {
		args = append(args,
			strconv.FormatUint(uint64(r.NSIDStart), 10),
			strconv.FormatUint(uint64(r.HostIDStart), 10),
			strconv.FormatUint(uint64(r.Length), 10),
		)
	}
	return args
}

// MaxID returns the highest in-namespace id this table maps, the bound
// grootfs uses to decide whether a claimed identity is one the caller's
// namespace can actually represent.
func (t Table) MaxID() uint32 {
	var highest uint32
	for _, r := range t {
		top := r.NSIDStart + r.Length - 1
		if top > highest {
			highest = top
		}
	}
	return highest
}

// Encode renders the table as a compact "ns,host,len;ns,host,len;..."
// string, used to hand a table computed in the coordinator to a detached
// helper process across an environment variable.
func (t Table) Encode() string {
	var b strings.Builder
	for i, r := range t {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d,%d,%d", r.NSIDStart, r.HostIDStart, r.Length)
	}
	return b.String()
}

// DecodeTable parses the format Table.Encode produces.
func DecodeTable(s string) (Table, error) {
	if s == "" {
		return nil, nil
	}
	var table Table
	for _, part := range strings.Split(s, ";") {
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("subid: malformed table entry %q", part)
		}
		ns, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("subid: malformed ns id %q: %w", fields[0], err)
		}
		host, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("subid: malformed host id %q: %w", fields[1], err)
		}
		length, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("subid: malformed length %q: %w", fields[2], err)
		}
		table = append(table, Range{NSIDStart: uint32(ns), HostIDStart: uint32(host), Length: uint32(length)})
	}
	return table, nil
}

// BuildUIDTable builds the table for username/realUID from the subuid file
// at path: a ns_id=0 -> realUID identity mapping, followed by the user's
// allocated ranges in file order, packed dense from ns_id=1.
func BuildUIDTable(path, username string, realUID uint32) Table {
	return build(path, username, realUID)
}

// BuildGIDTable is the GID analogue of BuildUIDTable.
func BuildGIDTable(path, username string, realGID uint32) Table {
	return build(path, username, realGID)
}

func build(path, username string, realID uint32) Table {
	table := Table{{NSIDStart: 0, HostIDStart: realID, Length: 1}}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			grootlog.Warnf("failed to open %s: %v", path, err)
		}
		grootlog.Warnf("no defined ids for user %s in %s, limited user/group support", username, path)
		return table
	}
	defer f.Close()

	entries, err := parseEntries(f, username)
	if err != nil {
		grootlog.Warnf("invalid format of %s: %v", path, err)
	}

	if len(entries) == 0 {
		grootlog.Warnf("no defined ids for user %s in %s, limited user/group support", username, path)
		return table
	}

	next := uint32(1)
	for _, e := range entries {
		table = append(table, Range{NSIDStart: next, HostIDStart: e.start, Length: e.count})
		next += e.count
	}

	return table
}

type entry struct {
	start uint32
	count uint32
}

// parseEntries scans lines of the form "name:start:count", returning every
// entry belonging to username, in file order. Malformed lines are skipped
// with a returned error describing the last failure seen (callers only use
// this to log a single warning, matching the source's per-line behaviour).
func parseEntries(r io.Reader, username string) ([]entry, error) {
	var entries []entry
	var lastErr error

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ":")
		if len(fields) != 3 {
			lastErr = fmt.Errorf("expected 3 colon-separated fields, got %d", len(fields))
			continue
		}
		if fields[0] != username {
			continue
		}

		start, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			lastErr = fmt.Errorf("invalid start id %q: %w", fields[1], err)
			continue
		}
		count, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			lastErr = fmt.Errorf("invalid count %q: %w", fields[2], err)
			continue
		}

		entries = append(entries, entry{start: uint32(start), count: uint32(count)})
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	return entries, lastErr
}
