// Package numfield parses and formats the optional numeric columns shared
// by the dataset and catalog files. An empty or unusable cell is nil.
package numfield

import (
	"math"
	"strconv"
)

// int64Limit is 2^63, the first float64 that no longer fits an int64.
const int64Limit = 1 << 63

// FitsInt64 reports whether f truncates to an int64 without overflow.
func FitsInt64(f float64) bool {
	return f >= -int64Limit && f < int64Limit
}

// Float parses s, rejecting NaN and infinities.
func Float(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Int64 parses s as a number and truncates it. Values outside int64 are nil.
func Int64(s string) *int64 {
	f := Float(s)
	if f == nil || !FitsInt64(*f) {
		return nil
	}
	n := int64(*f)
	return &n
}

// Int is Int64 narrowed to int.
func Int(s string) *int {
	n := Int64(s)
	if n == nil || *n < math.MinInt || *n > math.MaxInt {
		return nil
	}
	v := int(*n)
	return &v
}

func FormatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func FormatInt64(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func FormatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
