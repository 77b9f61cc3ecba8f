package validate

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIP(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", nil},
		{"   ", nil},
		{"10.0.0.1", nil},
		{"10.0.0.1/24", nil},
		{"0.0.0.0/0", nil},
		{"255.255.255.255/32", nil},
		{" 192.168.1.1/30 ", nil},
		{"001.002.003.004", nil},
		{"10.0.0.256", ErrOctetRange},
		{"999.1.1.1/8", ErrOctetRange},
		{"10.0.0.1/33", ErrInvalidFormat},
		{"10.0.0.1/05", ErrInvalidFormat},
		{"10.0.0.1/", ErrInvalidFormat},
		{"10.0.0", ErrInvalidFormat},
		{"10.0.0.1.1", ErrInvalidFormat},
		{"1234.0.0.1", ErrInvalidFormat},
		{"a.b.c.d", ErrInvalidFormat},
		{"10.0.0.1 /24", ErrInvalidFormat},
		{"fe80::1", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := IP(tt.in)
			if !errors.Is(got, tt.want) {
				t.Errorf("IP(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIPProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		octets := rapid.SliceOfN(rapid.IntRange(0, 999), 4, 4).Draw(t, "octets")
		withPrefix := rapid.Bool().Draw(t, "withPrefix")
		prefix := rapid.IntRange(0, 99).Draw(t, "prefix")

		parts := make([]string, len(octets))
		inRange := true
		for i, o := range octets {
			parts[i] = fmt.Sprint(o)
			if o > 255 {
				inRange = false
			}
		}
		s := strings.Join(parts, ".")
		prefixOK := true
		if withPrefix {
			s += fmt.Sprintf("/%d", prefix)
			prefixOK = prefix <= 32
		}

		err := IP(s)
		switch {
		case !prefixOK:
			if !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("IP(%q) = %v, want format error", s, err)
			}
		case !inRange:
			if !errors.Is(err, ErrOctetRange) {
				t.Fatalf("IP(%q) = %v, want range error", s, err)
			}
		default:
			if err != nil {
				t.Fatalf("IP(%q) = %v, want nil", s, err)
			}
		}
	})
}

func TestName(t *testing.T) {
	if err := Name("Gi0/0"); err != nil {
		t.Errorf("Expected valid name, got %v", err)
	}
	for _, in := range []string{"", "  ", "\t"} {
		if err := Name(in); !errors.Is(err, ErrNameRequired) {
			t.Errorf("Name(%q) = %v, want %v", in, err, ErrNameRequired)
		}
	}
}

func TestRows(t *testing.T) {
	errs := Rows([]Pair{
		{Name: "Gi0/0", IP: "10.0.0.1/24"},
		{Name: "", IP: "10.0.0.300"},
		{Name: "Gi0/0", IP: ""},
		{Name: "Gi0/2", IP: "bogus"},
	})
	if len(errs) != 3 {
		t.Fatalf("Expected 3 errors, got %d: %v", len(errs), errs)
	}

	want := []struct {
		row   int
		field Field
		err   error
	}{
		{1, FieldName, ErrNameRequired},
		{1, FieldIP, ErrOctetRange},
		{3, FieldIP, ErrInvalidFormat},
	}
	for i, w := range want {
		if errs[i].Row != w.row || errs[i].Field != w.field || !errors.Is(errs[i], w.err) {
			t.Errorf("error %d = %+v, want row %d field %s err %v", i, errs[i], w.row, w.field, w.err)
		}
	}
	if got := errs[0].Error(); got != "row 2 name: Interface name required" {
		t.Errorf("Unexpected message %q", got)
	}
}
