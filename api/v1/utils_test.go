package v1

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIPVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "ipv4 with spaces", raw: " 79.144.65.173 ", want: "79.144.65.173"},
		{name: "quoted ipv4", raw: "\"79.144.65.173\"", want: "79.144.65.173"},
		{name: "ipv4 with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "quoted forwarded ipv4", raw: "\"79.144.65.173:1234\"", want: "79.144.65.173"},
		{name: "ipv6 literal", raw: "2001:db8::1", want: "2001:db8::1"},
		{name: "ipv6 in brackets", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "invalid value", raw: "not-an-ip", want: ""},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, parsed := normalizeIP(tc.raw)
			assert.Equal(t, tc.want, got)

			if tc.want == "" {
				assert.Nil(t, parsed)
				return
			}

			require.NotNil(t, parsed)
			assert.Equal(t, tc.want, parsed.String())
		})
	}
}

func TestSelectPreferredIP(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{
			name:   "prefers public ipv4 over ipv6",
			values: []string{"2001:db8::1", "203.0.113.20"},
			want:   "203.0.113.20",
		},
		{
			name:   "skips private addresses",
			values: []string{"192.168.1.10", "10.0.0.5", "::1", "198.51.100.7"},
			want:   "198.51.100.7",
		},
		{
			name:   "returns ipv6 fallback when no ipv4",
			values: []string{"2001:db8::2"},
			want:   "2001:db8::2",
		},
		{
			name:   "returns empty when no valid candidates",
			values: []string{"", "   ", "not-an-ip"},
			want:   "",
		},
		{
			name:   "skips loopback from spoofed forwarding chains",
			values: []string{"127.0.0.1", "127.0.0.1", "203.0.113.5"},
			want:   "203.0.113.5",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selectPreferredIP(tc.values))
		})
	}
}

func TestParseForwardedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{
			name:   "single for entry",
			header: "for=203.0.113.60",
			want:   []string{"203.0.113.60"},
		},
		{
			name:   "multiple entries with proto and by",
			header: "for=203.0.113.60;proto=https;by=203.0.113.43, for=198.51.100.17",
			want:   []string{"203.0.113.60", "198.51.100.17"},
		},
		{
			name:   "quoted ipv6 with port",
			header: `for="[2001:db8:cafe::17]:4711"`,
			want:   []string{`"[2001:db8:cafe::17]:4711"`},
		},
		{
			name:   "no for component",
			header: "proto=https;by=203.0.113.43",
			want:   nil,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseForwardedHeader(tc.header))
		})
	}
}

func TestIsPrivateIPRanges(t *testing.T) {
	mappedPrivate := net.ParseIP("::ffff:192.168.1.5")
	require.NotNil(t, mappedPrivate)
	assert.True(t, isPrivateIP(mappedPrivate))

	mappedPublic := net.ParseIP("::ffff:8.8.8.8")
	require.NotNil(t, mappedPublic)
	assert.False(t, isPrivateIP(mappedPublic))

	uniqueLocal := net.ParseIP("fd12:3456:789a::1")
	require.NotNil(t, uniqueLocal)
	assert.True(t, isPrivateIP(uniqueLocal))
}

func TestGenerateETagIsStableAndQuoted(t *testing.T) {
	first := generateETag([]byte("attriflow-sdk"))
	second := generateETag([]byte("attriflow-sdk"))
	assert.Equal(t, first, second)
	assert.True(t, len(first) > 2 && first[0] == '"' && first[len(first)-1] == '"')

	assert.NotEqual(t, first, generateETag([]byte("attriflow-sdk-v2")))
}
