// Package data reads and writes observation time series.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	ssm "github.com/milosgajdos/go-ssm"
)

// TimeColumn is the name of the time column
const TimeColumn = "time"

// Channels resolves observation channels by name
type Channels interface {
	// Channel returns the channel with the given name
	Channel(name string) (ssm.Channel, error)
}

// Table is a table of observations: missing values are NaN
type Table struct {
	// Names are channel names
	Names []string
	// Times are observation times
	Times []float64
	// Values holds one row of channel values per time
	Values [][]float64
}

func missing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "nan", "null":
		return true
	}

	return false
}

// Read reads CSV table from r. The first column holds times, the remaining
// columns hold channel values; empty, NA and null cells are missing.
// Rows are sorted by time. It returns error if times are not strictly increasing.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if len(header) < 2 || strings.TrimSpace(header[0]) != TimeColumn {
		return nil, fmt.Errorf("invalid header: %v", header)
	}

	t := &Table{}
	for _, name := range header[1:] {
		t.Names = append(t.Names, strings.TrimSpace(name))
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	type record struct {
		t    float64
		vals []float64
	}
	recs := make([]record, 0, len(records))

	for n, rec := range records {
		tm, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil || math.IsNaN(tm) || math.IsInf(tm, 0) {
			return nil, fmt.Errorf("line %d: invalid time: %q", n+2, rec[0])
		}

		vals := make([]float64, len(t.Names))
		for i, cell := range rec[1:] {
			if missing(cell) {
				vals[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value of %s: %q", n+2, t.Names[i], cell)
			}
			vals[i] = v
		}
		recs = append(recs, record{t: tm, vals: vals})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].t < recs[j].t })

	for i, rec := range recs {
		if i > 0 && !(rec.t > recs[i-1].t) {
			return nil, fmt.Errorf("times are not strictly increasing: %v", rec.t)
		}
		t.Times = append(t.Times, rec.t)
		t.Values = append(t.Values, rec.vals)
	}

	return t, nil
}

// Rows returns the observation rows of the table. Only non-missing values are
// kept in a row. Every row resets the state indices in reset.
// It returns error if a channel can not be resolved.
func (t *Table) Rows(ch Channels, reset []int) ([]*ssm.Row, error) {
	channels := make([]ssm.Channel, len(t.Names))
	for i, name := range t.Names {
		c, err := ch.Channel(name)
		if err != nil {
			return nil, err
		}
		channels[i] = c
	}

	rows := make([]*ssm.Row, len(t.Times))
	for n, tm := range t.Times {
		row := &ssm.Row{Time: tm, Reset: reset}
		for i, v := range t.Values[n] {
			if math.IsNaN(v) {
				continue
			}
			row.Values = append(row.Values, v)
			row.Observed = append(row.Observed, channels[i])
		}
		rows[n] = row
	}

	return rows, nil
}

// Load reads CSV table from r and returns its observation rows
func Load(r io.Reader, ch Channels, reset []int) ([]*ssm.Row, error) {
	t, err := Read(r)
	if err != nil {
		return nil, err
	}

	return t.Rows(ch, reset)
}

// Write writes t to w as CSV. Missing values are written as NA.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(append([]string{TimeColumn}, t.Names...)); err != nil {
		return err
	}

	rec := make([]string, len(t.Names)+1)
	for n, tm := range t.Times {
		rec[0] = strconv.FormatFloat(tm, 'g', -1, 64)
		for i, v := range t.Values[n] {
			if math.IsNaN(v) {
				rec[i+1] = "NA"
				continue
			}
			rec[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
