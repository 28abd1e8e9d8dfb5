package fhir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/internal/platform/searchparam"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// DatePrecision is how much of a date/time a search value specifies.
type DatePrecision int

const (
	PrecisionYear DatePrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionFraction
)

func (p DatePrecision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	case PrecisionMinute:
		return "minute"
	case PrecisionSecond:
		return "second"
	case PrecisionFraction:
		return "fraction"
	default:
		return "unknown"
	}
}

// Layout used for string comparisons against stored date-times.
const dateCompareLayout = "2006-01-02T15:04:05+00:00"

var searchDateRe = regexp.MustCompile(`^(\d{4})(?:-(\d{2})(?:-(\d{2})(?:T(\d{2}):(\d{2})(?::(\d{2})(\.\d+)?)?(Z|[+-]\d{2}:\d{2})?)?)?)?$`)

// SearchDate is a parsed date search value, normalized to UTC.
type SearchDate struct {
	// Literal is the value as sent, without prefix.
	Literal   string
	Time      time.Time
	Precision DatePrecision
	// Shifted is set when a non-UTC offset was normalized away.
	Shifted bool
	// fraction digits, for PrecisionFraction
	digits int
}

// ParseSearchDate parses a FHIR date, dateTime or instant search value.
func ParseSearchDate(raw string) (SearchDate, error) {
	m := searchDateRe.FindStringSubmatch(raw)
	if m == nil {
		return SearchDate{}, fmt.Errorf("%q is not a FHIR date", raw)
	}
	num := func(s string, def int) int {
		if s == "" {
			return def
		}
		n, _ := strconv.Atoi(s)
		return n
	}

	sd := SearchDate{Literal: raw, Precision: PrecisionYear}
	year, month, day := num(m[1], 0), num(m[2], 1), num(m[3], 1)
	hour, minute, sec := num(m[4], 0), num(m[5], 0), num(m[6], 0)
	nsec := 0
	switch {
	case m[7] != "":
		sd.Precision = PrecisionFraction
		frac := m[7][1:]
		sd.digits = len(frac)
		if sd.digits > 9 {
			frac = frac[:9]
		}
		nsec = num(frac+strings.Repeat("0", 9-len(frac)), 0)
	case m[6] != "":
		sd.Precision = PrecisionSecond
	case m[4] != "":
		sd.Precision = PrecisionMinute
	case m[3] != "":
		sd.Precision = PrecisionDay
	case m[2] != "":
		sd.Precision = PrecisionMonth
	}

	if month < 1 || month > 12 {
		return SearchDate{}, fmt.Errorf("month out of range in %q", raw)
	}
	if hour > 23 || minute > 59 || sec > 59 {
		return SearchDate{}, fmt.Errorf("time out of range in %q", raw)
	}

	loc := time.UTC
	if zone := m[8]; zone != "" && zone != "Z" {
		oh, om := num(zone[1:3], 0), num(zone[4:6], 0)
		if oh > 14 || om > 59 {
			return SearchDate{}, fmt.Errorf("zone offset out of range in %q", raw)
		}
		offset := oh*3600 + om*60
		if zone[0] == '-' {
			offset = -offset
		}
		if offset != 0 {
			loc = time.FixedZone(zone, offset)
			sd.Shifted = true
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, loc)
	if t.Day() != day {
		return SearchDate{}, fmt.Errorf("day out of range in %q", raw)
	}
	sd.Time = t.UTC()
	return sd, nil
}

// Bounds returns the [lower, upper) range the value covers.
func (sd SearchDate) Bounds() (time.Time, time.Time) {
	t := sd.Time
	switch sd.Precision {
	case PrecisionYear:
		return t, t.AddDate(1, 0, 0)
	case PrecisionMonth:
		return t, t.AddDate(0, 1, 0)
	case PrecisionDay:
		return t, t.AddDate(0, 0, 1)
	case PrecisionMinute:
		return t, t.Add(time.Minute)
	case PrecisionSecond:
		return t, t.Add(time.Second)
	default:
		unit := time.Second
		for i := 0; i < sd.digits && i < 9; i++ {
			unit /= 10
		}
		return t, t.Add(unit)
	}
}

// format renders the UTC value at precision p.
func (sd SearchDate) format(p DatePrecision) string {
	switch p {
	case PrecisionYear:
		return sd.Time.Format("2006")
	case PrecisionMonth:
		return sd.Time.Format("2006-01")
	case PrecisionDay:
		return sd.Time.Format("2006-01-02")
	case PrecisionMinute:
		return sd.Time.Format("2006-01-02T15:04")
	case PrecisionSecond:
		return sd.Time.Format("2006-01-02T15:04:05")
	default:
		digits := sd.digits
		if digits > 9 {
			digits = 9
		}
		return sd.Time.Format("2006-01-02T15:04:05." + strings.Repeat("0", digits))
	}
}

// DatePattern is one stored representation an equality search accepts.
type DatePattern struct {
	Precision DatePrecision
	Pattern   string
}

const utcSuffix = `(Z|\+00:00)?$`

// EqualityPatterns enumerates the stored forms equal to the value: the
// value's own precision as an open prefix, and every coarser precision as
// a complete value. A shifted value also matches its literal form.
func (sd SearchDate) EqualityPatterns() []DatePattern {
	out := []DatePattern{{Precision: sd.Precision, Pattern: "^" + regexp.QuoteMeta(sd.format(sd.Precision))}}
	for p := PrecisionYear; p < sd.Precision; p++ {
		switch p {
		case PrecisionYear, PrecisionMonth, PrecisionDay:
			out = append(out, DatePattern{Precision: p, Pattern: "^" + regexp.QuoteMeta(sd.format(p)) + "$"})
		case PrecisionMinute, PrecisionSecond:
			out = append(out, DatePattern{Precision: p, Pattern: "^" + regexp.QuoteMeta(sd.format(p)) + utcSuffix})
		}
	}
	if sd.Shifted {
		out = append(out, DatePattern{Precision: sd.Precision, Pattern: "^" + regexp.QuoteMeta(sd.Literal)})
	}
	return out
}

func joinPatterns(ps []DatePattern) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.Pattern
	}
	return strings.Join(s, "|")
}

// dateValue renders t for a native or string-stored field.
func dateValue(t time.Time, native bool) any {
	if native {
		return t
	}
	return t.Format(dateCompareLayout)
}

// approximateWindow is a tenth of the distance from now, at least a day.
func approximateWindow(t, now time.Time) time.Duration {
	dist := now.Sub(t)
	if dist < 0 {
		dist = -dist
	}
	w := dist / 10
	if w < 24*time.Hour {
		w = 24 * time.Hour
	}
	return w
}

// scalarDateExpr compares a date, dateTime or instant element.
func (d *dispatchContext) scalarDateExpr(path string, prefix SearchPrefix, sd SearchDate, native bool) filter.Expr {
	lower, upper := sd.Bounds()
	v := func(t time.Time) any { return dateValue(t, native) }
	fine := sd.Precision >= PrecisionSecond

	switch prefix {
	case PrefixNe:
		return filter.Nor(d.scalarDateExpr(path, PrefixEq, sd, native))
	case PrefixLt, PrefixEb:
		return filter.Leaf(path, filter.Cmp(filter.OpLt, v(lower)))
	case PrefixLe:
		if fine {
			return filter.Leaf(path, filter.Cmp(filter.OpLte, v(sd.Time)))
		}
		return filter.Leaf(path, filter.Cmp(filter.OpLt, v(upper)))
	case PrefixGt:
		if fine {
			return filter.Leaf(path, filter.Cmp(filter.OpGt, v(sd.Time)))
		}
		return filter.Leaf(path, filter.Cmp(filter.OpGte, v(upper)))
	case PrefixSa:
		return filter.Leaf(path, filter.Cmp(filter.OpGte, v(upper)))
	case PrefixGe:
		return filter.Leaf(path, filter.Cmp(filter.OpGte, v(lower)))
	case PrefixAp:
		w := approximateWindow(sd.Time, d.opts.now())
		return filter.Leaf(path, filter.Cmp(filter.OpGte, v(lower.Add(-w))), filter.Cmp(filter.OpLt, v(upper.Add(w))))
	default:
		if native {
			return filter.Leaf(path, filter.Cmp(filter.OpGte, lower), filter.Cmp(filter.OpLt, upper))
		}
		return filter.Regex(path, joinPatterns(sd.EqualityPatterns()))
	}
}

// periodExpr compares a Period element: the period must overlap or lie on
// the requested side of the value's range. An open end extends forever.
func (d *dispatchContext) periodExpr(path string, prefix SearchPrefix, sd SearchDate) filter.Expr {
	start, end := path+".start", path+".end"
	native := d.opts.isNativeDate(d.resourceType, start)
	v := func(t time.Time) any { return dateValue(t, native) }
	lower, upper := sd.Bounds()

	openEnd := func(op filter.Op, t time.Time) filter.Expr {
		return filter.Or(filter.Leaf(end, filter.Cmp(op, v(t))), filter.Eq(end, nil))
	}
	overlaps := func(lo, hi time.Time) filter.Expr {
		return filter.And(filter.Leaf(start, filter.Cmp(filter.OpLt, v(hi))), openEnd(filter.OpGte, lo))
	}

	switch prefix {
	case PrefixNe:
		return filter.Nor(overlaps(lower, upper))
	case PrefixLt:
		return filter.Leaf(start, filter.Cmp(filter.OpLt, v(lower)))
	case PrefixLe:
		return filter.Leaf(start, filter.Cmp(filter.OpLt, v(upper)))
	case PrefixGt:
		return openEnd(filter.OpGte, upper)
	case PrefixGe:
		return openEnd(filter.OpGte, lower)
	case PrefixSa:
		return filter.Leaf(start, filter.Cmp(filter.OpGte, v(upper)))
	case PrefixEb:
		return filter.Leaf(end, filter.Cmp(filter.OpLt, v(lower)))
	case PrefixAp:
		w := approximateWindow(sd.Time, d.opts.now())
		return overlaps(lower.Add(-w), upper.Add(w))
	default:
		return overlaps(lower, upper)
	}
}

// dateFragments builds one fragment per value; a comma list inside a
// value is OR'd. A malformed date fails the compile.
func (d *dispatchContext) dateFragments(values []string) ([]filter.Expr, error) {
	out := make([]filter.Expr, 0, len(values))
	for _, raw := range values {
		var alts []filter.Expr
		for _, item := range splitList(raw) {
			ps := ParseSearchValue(item)
			sd, err := ParseSearchDate(ps.Value)
			if err != nil {
				return nil, invalidValue(d.def.Name, item, err.Error())
			}
			alts = append(alts, d.acrossPaths(func(path string) filter.Expr {
				return d.dateExpr(path, ps.Prefix, sd)
			}))
		}
		out = append(out, anyOf(alts))
	}
	return d.record(out...), nil
}

// dateExpr picks the comparison by the element's shape, falling back to
// the parameter type when the shape is unknown.
func (d *dispatchContext) dateExpr(path string, prefix SearchPrefix, sd SearchDate) filter.Expr {
	shape := d.fieldType(path).Shape
	if shape == "" {
		switch d.def.Type {
		case searchparam.TypePeriod:
			shape = fhirmodels.TypePeriod
		case searchparam.TypeTiming:
			shape = fhirmodels.TypeTiming
		}
	}

	switch shape {
	case fhirmodels.TypePeriod:
		return d.periodExpr(path, prefix, sd)
	case fhirmodels.TypeTiming:
		event := path + ".event"
		return filter.Or(
			d.scalarDateExpr(event, prefix, sd, d.opts.isNativeDate(d.resourceType, event)),
			d.periodExpr(path+".repeat.boundsPeriod", prefix, sd),
		)
	default:
		return d.scalarDateExpr(path, prefix, sd, d.opts.isNativeDate(d.resourceType, path))
	}
}
