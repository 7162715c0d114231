package services

import (
	"regexp"
	"strings"
	"time"
)

// Gemini quota errors carry the wait they ask for in the message, for
// instance "Please retry in 45.387061394s." or "retryDelay:45s".
var quotaHint = regexp.MustCompile(`(?i)(?:retry in|retrydelay[:\s])\s*([0-9]+(?:\.[0-9]+)?s)`)

// isQuotaError tells a quota refusal from any other embedding failure.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "quota")
}

// quotaRetryHint is the wait named in err, zero when there is none.
func quotaRetryHint(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := quotaHint.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	d, perr := time.ParseDuration(m[1])
	if perr != nil {
		return 0
	}
	return d
}

// retryBackoff never waits less than fixed. A quota error may stretch the
// wait to the provider's hint.
func retryBackoff(err error, fixed time.Duration) time.Duration {
	if !isQuotaError(err) {
		return fixed
	}
	return max(fixed, quotaRetryHint(err))
}
