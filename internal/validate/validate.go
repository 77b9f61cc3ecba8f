// Package validate checks interface names and IPv4 addresses entered in the
// device configuration form and the link editor.
package validate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("Invalid IP format")
	ErrOctetRange    = errors.New("IP octet out of range")
	ErrNameRequired  = errors.New("Interface name required")
)

// Octets are one to three digits; the prefix length is 0-32 without leading zeros.
var ipPattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})(?:/(?:\d|[12]\d|3[0-2]))?$`)

// IP validates an IPv4 address with an optional prefix length. A blank value
// is valid and means "no address".
func IP(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := ipPattern.FindStringSubmatch(s)
	if m == nil {
		return ErrInvalidFormat
	}
	for _, octet := range m[1:5] {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return ErrOctetRange
		}
	}
	return nil
}

// Name validates an interface name. Duplicate names across rows are allowed.
func Name(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrNameRequired
	}
	return nil
}

// Field identifies an input within an interface row.
type Field string

const (
	FieldName Field = "name"
	FieldIP   Field = "ip"
)

// FieldError is a validation failure on one field of one row.
type FieldError struct {
	Row   int
	Field Field
	Err   error
}

func (e FieldError) Error() string {
	return "row " + strconv.Itoa(e.Row+1) + " " + string(e.Field) + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error { return e.Err }

// Row validates a single interface row.
func Row(idx int, name, ip string) []FieldError {
	var errs []FieldError
	if err := Name(name); err != nil {
		errs = append(errs, FieldError{Row: idx, Field: FieldName, Err: err})
	}
	if err := IP(ip); err != nil {
		errs = append(errs, FieldError{Row: idx, Field: FieldIP, Err: err})
	}
	return errs
}

// Pair is the name and ip of one row.
type Pair struct {
	Name string
	IP   string
}

// Rows validates every row and returns all failures in row order.
func Rows(rows []Pair) []FieldError {
	var errs []FieldError
	for i, r := range rows {
		errs = append(errs, Row(i, r.Name, r.IP)...)
	}
	return errs
}
