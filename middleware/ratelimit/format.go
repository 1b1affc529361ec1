package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// formatSeconds arredonda para cima: Retry-After de 0 faria o cliente repetir na hora.
func formatSeconds(d time.Duration) string {
	s := int64((d + time.Second - 1) / time.Second)
	return formatInt(max(s, 1))
}
