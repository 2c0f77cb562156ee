package service

import (
	"crypto/rand"
	"time"
)

const bookingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewBookingCode returns BK, the UTC date as YYYYMMDD and six random
// characters from [A-Z0-9].
func NewBookingCode(now time.Time) string {
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	code := make([]byte, 0, 16)
	code = append(code, "BK"...)
	code = now.UTC().AppendFormat(code, "20060102")
	for _, b := range buf {
		code = append(code, bookingAlphabet[int(b)%len(bookingAlphabet)])
	}
	return string(code)
}
