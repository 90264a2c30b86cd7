// Package gribidx locates and fetches individual GRIB2 messages out of large
// NCEP files by consulting the ".idx" sidecar, so only the byte ranges of
// requested variables cross the network.
package gribidx

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Entry is one parsed line of a GRIB index sidecar:
// recordNo:byteOffset:d=YYYYMMDDHH:SHORT:LEVEL:STEP:...
type Entry struct {
	Record int
	Offset int64
	// End is the exclusive end of the message's byte range; -1 for the last
	// record, whose range extends to the end of the file.
	End       int64
	ShortName string
	Level     string
	Step      string
	Line      string
}

// ParseIndex parses the sidecar body into ordered entries with byte ranges
// resolved against the following record.
func ParseIndex(body string) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 6 {
			return nil, fmt.Errorf("gribidx: malformed index line %q", line)
		}
		rec, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("gribidx: bad record number in %q: %w", line, err)
		}
		off, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("gribidx: bad offset in %q: %w", line, err)
		}
		entries = append(entries, Entry{
			Record:    rec,
			Offset:    off,
			End:       -1,
			ShortName: parts[3],
			Level:     parts[4],
			Step:      parts[5],
			Line:      line,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gribidx: scan index: %w", err)
	}
	for i := 0; i+1 < len(entries); i++ {
		entries[i].End = entries[i+1].Offset
	}
	return entries, nil
}

// Match returns the index entries whose line contains the selector, in index
// order.
func Match(entries []Entry, selector string) []Entry {
	var out []Entry
	for _, e := range entries {
		if strings.Contains(e.Line+":", selector) {
			out = append(out, e)
		}
	}
	return out
}

// Attributes are the message semantics the conversion pipeline keys on. They
// are derived from the index line's variable, level, and step columns.
type Attributes struct {
	ShortName string
	StepRange string // "a-b" for interval products, "h" otherwise
	StepType  string // instant, avg, acc, accum, max, min
}

// ParseAttributes derives Attributes from an index entry.
func ParseAttributes(e Entry) Attributes {
	a := Attributes{
		ShortName: shortName(e.ShortName, e.Level),
		StepType:  "instant",
	}
	step := e.Step
	switch {
	case step == "anl":
		a.StepRange = "0"
	default:
		fields := strings.Fields(step)
		if len(fields) > 0 {
			a.StepRange = fields[0]
		}
		switch {
		case strings.Contains(step, " ave "):
			a.StepType = "avg"
		case strings.Contains(step, " acc "):
			a.StepType = "acc"
		case strings.Contains(step, " max "):
			a.StepType = "max"
		case strings.Contains(step, " min "):
			a.StepType = "min"
		}
	}
	return a
}

// shortName maps the index spelling to eccodes-style short names where the
// pipeline depends on them.
func shortName(varName, level string) string {
	switch varName {
	case "SPFH":
		if strings.HasPrefix(level, "2 m") {
			return "2sh"
		}
		return "q"
	case "VVEL":
		return "w"
	case "TMP":
		return "t"
	case "PRMSL", "MSLMA":
		return "prmsl"
	case "RH":
		return "r"
	}
	return strings.ToLower(varName)
}
