package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QuarterOf returns the label of the quarter containing t, e.g. "Q4 2024"
func QuarterOf(t time.Time) string {
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("Q%d %d", q, t.Year())
}

// ParseQuarter splits a "Qn YYYY" label. Labels are free text, so ok is false
// for anything that does not follow that shape.
func ParseQuarter(label string) (year, quarter int, ok bool) {
	fields := strings.Fields(label)
	if len(fields) != 2 || len(fields[0]) != 2 || (fields[0][0] != 'Q' && fields[0][0] != 'q') {
		return 0, 0, false
	}
	quarter, err := strconv.Atoi(fields[0][1:])
	if err != nil || quarter < 1 || quarter > 4 {
		return 0, 0, false
	}
	year, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return year, quarter, true
}

// SortQuarters orders labels chronologically in place. Labels that cannot be
// parsed go last, in lexical order.
func SortQuarters(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		yi, qi, oki := ParseQuarter(labels[i])
		yj, qj, okj := ParseQuarter(labels[j])
		switch {
		case oki && okj:
			if yi != yj {
				return yi < yj
			}
			return qi < qj
		case oki != okj:
			return oki
		default:
			return labels[i] < labels[j]
		}
	})
}
