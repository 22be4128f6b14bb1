package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

const (
	totpPeriod = 30
	totpDigits = 1_000_000
)

// GenerateTOTP derives the 6 digit RFC 6238 code for secret at serverTime (unix seconds)
// using HMAC-SHA1 with a 30 second step.
func GenerateTOTP(secret []byte, serverTime int64) string {
	if serverTime < 0 {
		serverTime = 0
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(serverTime/totpPeriod))

	mac := hmac.New(sha1.New, secret)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	// dynamic truncation (RFC 4226 section 5.3)
	offset := sum[len(sum)-1] & 0x0F
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	return fmt.Sprintf("%06d", value%totpDigits)
}
