package gpio

import "testing"

func TestParsePinName(t *testing.T) {
	cases := []struct {
		in         string
		wantPin    int
		wantInvert bool
		wantOK     bool
	}{
		{"RpiJ8Pin08", 14, false, true},
		{"!RpiJ8Pin08", 14, true, true},
		{"rpij8pin11", 17, false, true},
		{"!rpij8pin40", 21, true, true},
		{"RTS", 0, false, false},
		{"!DTR", 0, true, false},
	}
	for _, c := range cases {
		pin, invert, ok, err := ParsePinName(c.in)
		if err != nil {
			t.Errorf("ParsePinName(%q): %v", c.in, err)
			continue
		}
		if ok != c.wantOK {
			t.Errorf("ParsePinName(%q) ok = %v, want %v", c.in, ok, c.wantOK)
		}
		if ok && (pin != c.wantPin || invert != c.wantInvert) {
			t.Errorf("ParsePinName(%q) = (%d, %v), want (%d, %v)", c.in, pin, invert, c.wantPin, c.wantInvert)
		}
	}
}

func TestParsePinNameInvalid(t *testing.T) {
	for _, in := range []string{"", "RpiJ8Pin99", "RpiJ8PinAA", "Foo"} {
		if _, _, _, err := ParsePinName(in); err == nil {
			t.Errorf("ParsePinName(%q): expected error", in)
		}
	}
}
