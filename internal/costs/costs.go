// Package costs accounts for what pipeline runs spend. Workflow logs
// carry usage records; parsing them yields a per-run average that prices
// the runs the queue manages to skip.
package costs

import (
	"archive/zip"
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// DefaultFallbackCost is the assumed cost of one run when no usage data
// is available yet.
const DefaultFallbackCost = 2.50

// usagePattern matches the usage records the pipeline writes into its
// workflow logs: "[usage] cost_usd=1.23 tokens=45678". Actions log lines
// carry a timestamp prefix, so the marker is matched anywhere in the line.
var usagePattern = regexp.MustCompile(`\[usage\]\s+cost_usd=([0-9.]+)\s+tokens=([0-9]+)`)

// Summary aggregates the usage records found in one or more logs.
type Summary struct {
	Runs           int     `json:"runs"`
	TotalCostUSD   float64 `json:"totalCostUsd"`
	TotalTokens    int64   `json:"totalTokens"`
	AverageCostUSD float64 `json:"averageCostUsd"`
}

// merge folds another summary in and recomputes the average.
func (s *Summary) merge(other Summary) {
	s.Runs += other.Runs
	s.TotalCostUSD += other.TotalCostUSD
	s.TotalTokens += other.TotalTokens
	if s.Runs > 0 {
		s.AverageCostUSD = s.TotalCostUSD / float64(s.Runs)
	}
}

// ParseUsageLog scans log text for usage records. Lines without a record
// are ignored; a malformed number inside a record drops that record only.
func ParseUsageLog(r io.Reader) (Summary, error) {
	var sum Summary
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := usagePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		cost, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		tokens, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		sum.Runs++
		sum.TotalCostUSD += cost
		sum.TotalTokens += tokens
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, err
	}
	if sum.Runs > 0 {
		sum.AverageCostUSD = sum.TotalCostUSD / float64(sum.Runs)
	}
	return sum, nil
}

// ParseLogArchive reads a workflow log zip, the format the actions API
// serves, and aggregates usage records across every text entry.
func ParseLogArchive(data []byte) (Summary, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".txt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Summary{}, err
		}
		entry, err := ParseUsageLog(rc)
		rc.Close()
		if err != nil {
			return Summary{}, err
		}
		sum.merge(entry)
	}
	return sum, nil
}
