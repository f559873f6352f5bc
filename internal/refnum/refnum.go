package refnum

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	accountPrefix   = "WS"
	accountDigits   = 12
	referencePrefix = "TXN"
)

var digitCeiling = big.NewInt(10)

// AccountNumber generates a candidate account number in the form
// WS followed by twelve random digits. Uniqueness is enforced by the
// store; callers regenerate on collision.
func AccountNumber() string {
	var b strings.Builder
	b.WriteString(accountPrefix)
	for i := 0; i < accountDigits; i++ {
		n, err := rand.Int(rand.Reader, digitCeiling)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a zero digit rather than panic mid-request.
			b.WriteByte('0')
			continue
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String()
}

// Reference generates a transaction reference number derived from the
// current time and a random suffix, e.g. TXN-1718000000000-9F3A21BC.
func Reference() string {
	suffix := strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
	return referencePrefix + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix
}
