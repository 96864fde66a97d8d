package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

func BeautifyJSON(data []byte) string {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return string(data)
	}
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(pretty)
}

// FormatPoints rounds to two decimals and groups thousands.
func FormatPoints(points float64) string {
	if points == 0 {
		return "0"
	}
	points = math.Round(points*100) / 100
	s := strconv.FormatFloat(math.Abs(points), 'f', 2, 64)
	s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")

	intPart, fracPart, _ := strings.Cut(s, ".")
	for i := len(intPart) - 3; i > 0; i -= 3 {
		intPart = intPart[:i] + "," + intPart[i:]
	}
	if fracPart != "" {
		intPart += "." + fracPart
	}
	if points < 0 {
		return "-" + intPart
	}
	return intPart
}
