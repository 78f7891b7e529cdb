package preview

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const simpleColumns = 15

// CSV previews a CSV file. The simple variant lists up to 15 column names;
// the detailed one describes every column.
func CSV(path, name string, simple bool) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	r := csv.NewReader(strings.NewReader(decode(trimBOM(raw))))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return fmt.Sprintf("-> %s is empty.", name), nil
	}

	header, rows := records[0], records[1:]
	out := []string{fmt.Sprintf("-> %s has %d rows and %d columns.", name, len(rows), len(header))}

	if simple {
		shown := header
		if len(shown) > simpleColumns {
			shown = shown[:simpleColumns]
		}
		line := "The columns are: " + strings.Join(shown, ", ")
		if len(header) > simpleColumns {
			line += fmt.Sprintf("... and %d more columns", len(header)-simpleColumns)
		}
		return strings.Join(append(out, line), "\n"), nil
	}

	out = append(out, "Here is some information about the columns:")
	order := make([]int, len(header))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return header[order[a]] < header[order[b]] })

	for _, i := range order {
		values := make([]string, len(rows))
		for k, row := range rows {
			if i < len(row) {
				values[k] = row[i]
			}
		}
		if line := describeColumn(header[i], values); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

type column struct {
	dtype   string
	present []string
	nulls   int
	unique  []string // in order of appearance
	counts  map[string]int
}

func isNull(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NA", "N/A", "NaN", "nan", "null", "NULL":
		return true
	}
	return false
}

func analyse(values []string) column {
	c := column{counts: map[string]int{}}
	for _, v := range values {
		if isNull(v) {
			c.nulls++
			continue
		}
		c.present = append(c.present, v)
		if c.counts[v] == 0 {
			c.unique = append(c.unique, v)
		}
		c.counts[v]++
	}
	c.dtype = inferType(c.present, c.nulls > 0)
	return c
}

func inferType(values []string, hasNulls bool) string {
	if len(values) == 0 {
		return "float64"
	}
	isBool, isInt, isFloat := true, true, true
	for _, v := range values {
		switch v {
		case "True", "False", "true", "false":
		default:
			isBool = false
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
	}
	switch {
	case isBool && !hasNulls:
		return "bool"
	case isInt && !hasNulls:
		return "int64"
	case isFloat:
		return "float64"
	}
	return "object"
}

func describeColumn(name string, values []string) string {
	c := analyse(values)
	label := fmt.Sprintf("%s (%s)", name, c.dtype)

	switch {
	case c.dtype == "bool":
		trues := 0
		for _, v := range c.present {
			if strings.EqualFold(v, "true") {
				trues++
			}
		}
		pct := 100 * float64(trues) / float64(len(c.present))
		return fmt.Sprintf("%s is %.2f%% True, %.2f%% False", label, pct, 100-pct)
	case len(c.unique) < 10:
		items := make([]string, 0, len(c.unique)+1)
		for _, v := range c.unique {
			items = append(items, pyRepr(v, c.dtype))
		}
		if c.nulls > 0 {
			items = append(items, "nan")
		}
		return fmt.Sprintf("%s has %d unique values: [%s]", label, len(c.unique), strings.Join(items, ", "))
	case c.dtype == "int64" || c.dtype == "float64":
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range c.present {
			f, _ := strconv.ParseFloat(v, 64)
			lo, hi = math.Min(lo, f), math.Max(hi, f)
		}
		return fmt.Sprintf("%s has range: %.2f - %.2f, %d nan values", label, lo, hi, c.nulls)
	default:
		top := append([]string(nil), c.unique...)
		sort.SliceStable(top, func(a, b int) bool { return c.counts[top[a]] > c.counts[top[b]] })
		if len(top) > 4 {
			top = top[:4]
		}
		for i, v := range top {
			top[i] = pyRepr(v, c.dtype)
		}
		return fmt.Sprintf("%s has %d unique values. Some example values: [%s]", label, len(c.unique), strings.Join(top, ", "))
	}
}

// pyRepr renders a value the way it would appear in a python list.
func pyRepr(v, dtype string) string {
	if dtype == "object" {
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return v
}
