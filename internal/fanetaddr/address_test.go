package fanetaddr

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want Address
	}{
		{"11:45AA", Address{0x11, 0x45AA}},
		{"11,45aa", Address{0x11, 0x45AA}},
		{"B,32E", Address{0x0B, 0x032E}},
		{"0,0", Broadcast},
	}
	for _, c := range cases {
		got := Parse(c.in)
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
		if !got.IsValid() {
			t.Errorf("Parse(%q): expected valid address", c.in)
		}
		if Parse(got.String()) != got {
			t.Errorf("round trip through String() failed for %+v", got)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "zz:zz", "12345", "1122334", ":1234", "12:"} {
		if got := Parse(in); got.IsValid() {
			t.Errorf("Parse(%q) = %+v, want invalid", in, got)
		}
	}
}

func TestSeedScenario1(t *testing.T) {
	a := Parse("11:45AA")
	if a.Manufacturer != 0x11 || a.Device != 0x45AA {
		t.Fatalf("got %+v", a)
	}
	if a.ToUint32() != 0x001145AA {
		t.Fatalf("ToUint32() = %#x", a.ToUint32())
	}
	if got := a.ToHex(':'); got != "11:45aa" {
		t.Fatalf("ToHex = %q", got)
	}
}

func TestFromUint32(t *testing.T) {
	a := Address{0x11, 0x45AA}
	if got := FromUint32(a.ToUint32()); got != a {
		t.Errorf("FromUint32(ToUint32()) = %+v, want %+v", got, a)
	}
}

func TestBroadcastAndInvalid(t *testing.T) {
	if !Broadcast.IsBroadcast() {
		t.Error("Broadcast.IsBroadcast() = false")
	}
	if Invalid.IsValid() {
		t.Error("Invalid.IsValid() = true")
	}
}
