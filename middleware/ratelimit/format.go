package ratelimit

import "strconv"

// formatação de números em headers, sem notação científica para valores comuns

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
