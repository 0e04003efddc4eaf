// Package humanize formats byte counts and transfer rates the way the
// downloader reports per-repo progress (§4.6), grounded on
// src/update.c's humanize_size/print_rate in original_source/.
package humanize

import "fmt"

// units are the IEC byte-unit labels from B to YiB (§4.6 "Size labels").
var units = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}

// pickUnit divides val by 1024 until it fits within ±2048 of the current
// unit (the original's off-by-a-factor-of-two cutoff, preserved rather than
// "fixed" to 1024 since it only shifts the unit boundary, never the value).
func pickUnit(val float64) (float64, string) {
	index := 0
	for index < len(units)-1 && (val > 2048.0 || val < -2048.0) {
		val /= 1024.0
		index++
	}
	return val, units[index]
}

// Size renders a byte count as "<value><unit>" with one fractional digit,
// matching the transferred-size column of the downloader's progress line.
func Size(bytes float64) string {
	val, unit := pickUnit(bytes)
	return fmt.Sprintf("%.1f%s", val, unit)
}

// Rate renders a bytes-per-second value as "<value><unit>/s". The
// fractional digit count shrinks as the magnitude grows so the printed
// width stays roughly constant: two digits below 9.995, one below 99.95,
// none above (§4.6 "Rate formatting").
func Rate(bytesPerSecond float64) string {
	val, unit := pickUnit(bytesPerSecond)
	switch {
	case val < 9.995:
		return fmt.Sprintf("%.2f%s/s", val, unit)
	case val < 99.95:
		return fmt.Sprintf("%.1f%s/s", val, unit)
	default:
		return fmt.Sprintf("%.0f%s/s", val, unit)
	}
}
