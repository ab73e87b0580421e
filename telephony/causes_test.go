package telephony_test

import (
	"testing"

	"github.com/Reverse-Call-Center/routing-engine/telephony"
)

func TestCauseName(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{16, "remote-clearing"},
		{17, "remote-busy"},
		{18, "remote-no-answer"},
		{19, "remote-no-answer"},
		{21, "remote-rejected"},
		{34, "congestion"},
		{999, "remote-clearing"},
	}
	for _, tc := range cases {
		if got := telephony.CauseName(tc.code); got != tc.want {
			t.Errorf("cause %d: got %q, want %q", tc.code, got, tc.want)
		}
	}
}
