package notifications

import "testing"

func TestReadPathID(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/notifications/abc-123/read", "abc-123"},
		{"/api/notifications//read", ""},
		{"/api/notifications/abc-123", ""},
		{"/api/notifications/a/b/read", ""},
		{"/api/other/abc/read", ""},
	}
	for _, tc := range cases {
		if got := readPathID(tc.path); got != tc.want {
			t.Fatalf("readPathID(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestClampListLimit(t *testing.T) {
	cases := []struct {
		limit int
		want  int
	}{
		{-1, 50},
		{0, 50},
		{1, 1},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		if got := clampListLimit(tc.limit); got != tc.want {
			t.Fatalf("clampListLimit(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}
