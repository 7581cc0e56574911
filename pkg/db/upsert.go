package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNonContiguousIDs is returned when the statements of one batch upsert
// were not handed consecutive generated ids
var ErrNonContiguousIDs = errors.New("generated ids are not contiguous across the batch")

// UpsertRuns splits rows into consecutive runs that write the same set of
// columns. The key column counts as present in every row. Rows keep their
// input order, so executing the runs in order inserts new rows in input
// order.
func UpsertRuns(key string, rows []Row) [][]Row {
	var (
		runs    [][]Row
		current string
	)
	for i, row := range rows {
		signature := columnSignature(key, row)
		if i == 0 || signature != current {
			runs = append(runs, nil)
			current = signature
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], row)
	}
	return runs
}

func columnSignature(key string, row Row) string {
	columns := make([]string, 0, len(row)+1)
	if _, ok := row[key]; !ok {
		columns = append(columns, key)
	}
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return strings.Join(columns, "\x00")
}

// MergeUpsertResults combines the results of running each run as its own
// statement. FirstID is the first generated id of the first run that inserts;
// every later inserting run must continue the sequence. A run that could not
// report its first id makes the merged FirstID zero.
func MergeUpsertResults(key string, runs [][]Row, results []UpsertResult) (UpsertResult, error) {
	if len(runs) != len(results) {
		return UpsertResult{}, fmt.Errorf("upsert merge: %d runs but %d results", len(runs), len(results))
	}

	var (
		merged      UpsertResult
		inserted    int64
		unavailable bool
	)
	for i, run := range runs {
		merged.Affected += results[i].Affected

		newKeys := CountNewKeys(key, run)
		if newKeys == 0 {
			continue
		}
		firstID := results[i].FirstID
		switch {
		case firstID <= 0:
			unavailable = true
		case unavailable:
		case inserted == 0:
			merged.FirstID = firstID
		case firstID != merged.FirstID+inserted:
			return UpsertResult{}, fmt.Errorf("%w: expected %d, got %d", ErrNonContiguousIDs, merged.FirstID+inserted, firstID)
		}
		inserted += newKeys
	}

	if unavailable {
		merged.FirstID = 0
	}
	return merged, nil
}
