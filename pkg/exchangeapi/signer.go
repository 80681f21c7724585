package exchangeapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sign returns the hex-encoded HMAC-SHA256 of timestamp + method + path + body.
// The server recomputes the same concatenation, so no delimiters are inserted
// and the order is fixed. path includes the version prefix and query string,
// e.g. "/v2/BTC-EUR/candles?interval=1h&limit=50".
func Sign(secret string, timestampMs int64, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
