package logging

import "regexp"

var (
	// Order matters: the more specific patterns run first.
	telegramTokenPattern = regexp.MustCompile(`bot[0-9]{5,}:[A-Za-z0-9_-]{20,}`)
	slackTokenPattern    = regexp.MustCompile(`xox[abprs]-[A-Za-z0-9-]+`)
	resendKeyPattern     = regexp.MustCompile(`re_[A-Za-z0-9_]{8,}`)
	bearerPattern        = regexp.MustCompile(`Bearer [A-Za-z0-9._~+/=-]+`)

	// user:password@ in postgres:// and amqp:// URLs.
	urlPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = telegramTokenPattern.ReplaceAllString(msg, "bot****")
	msg = slackTokenPattern.ReplaceAllString(msg, "xox*-****")
	msg = resendKeyPattern.ReplaceAllString(msg, "re_****")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = urlPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}
