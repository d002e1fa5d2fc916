package schema

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// checkStringFormat validates the well-known string formats. Unknown
// formats are accepted.
func checkStringFormat(format, s string) error {
	switch format {
	case "date-time":
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return errors.New("not an RFC 3339 date-time")
		}
	case "date":
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return errors.New("not a full-date")
		}
	case "time":
		if _, err := time.Parse("15:04:05Z07:00", s); err != nil {
			if _, err := time.Parse("15:04:05.999999999Z07:00", s); err != nil {
				return errors.New("not a full-time")
			}
		}
	case "email":
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return errors.New("not an email address")
		}
	case "uuid":
		if len(s) != 36 {
			return errors.New("not a UUID")
		}
		if _, err := uuid.Parse(s); err != nil {
			return errors.New("not a UUID")
		}
	case "uri":
		u, err := url.Parse(s)
		if err != nil || !u.IsAbs() {
			return errors.New("not an absolute URI")
		}
	case "uri-reference":
		if _, err := url.Parse(s); err != nil {
			return errors.New("not a URI reference")
		}
	case "hostname":
		if len(s) > 253 || !hostnamePattern.MatchString(s) {
			return errors.New("not a hostname")
		}
	case "ipv4":
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil || strings.Contains(s, ":") {
			return errors.New("not an IPv4 address")
		}
	case "ipv6":
		ip := net.ParseIP(s)
		if ip == nil || !strings.Contains(s, ":") {
			return errors.New("not an IPv6 address")
		}
	case "byte":
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return errors.New("not base64 encoded")
		}
	}
	return nil
}

// checkNumberFormat validates the integer width formats. float and double
// are not range checked.
func checkNumberFormat(format string, f float64) error {
	switch format {
	case "int32":
		if !isIntegral(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return fmt.Errorf("%s is out of range for int32", formatFloat(f))
		}
	case "int64":
		if !isIntegral(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return fmt.Errorf("%s is out of range for int64", formatFloat(f))
		}
	}
	return nil
}
