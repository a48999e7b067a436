package wizard

import "testing"

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      Validator
		in      string
		want    string
		wantErr bool
	}{
		{"int ok", NonNegativeInt, "42", "42", false},
		{"int zero", NonNegativeInt, "0", "0", false},
		{"int trims", NonNegativeInt, " 7 ", "7", false},
		{"int leading zeros", NonNegativeInt, "007", "7", false},
		{"int negative", NonNegativeInt, "-1", "", true},
		{"int float", NonNegativeInt, "1.5", "", true},
		{"int text", NonNegativeInt, "abc", "", true},
		{"int plus", NonNegativeInt, "+3", "", true},

		{"name ok", Name, "allow_ssh_22", "allow_ssh_22", false},
		{"name space", Name, "my rule", "", true},
		{"name dash", Name, "a-b", "", true},
		{"name unicode", Name, "правило", "", true},
		{"name empty", Name, "", "", true},

		{"port ok", Port, "443", "443", false},
		{"port zero", Port, "0", "", true},
		{"port high", Port, "65536", "", true},

		{"optional port all", OptionalPort, "all", "", false},
		{"optional port dash", OptionalPort, "-", "", false},
		{"optional port value", OptionalPort, "22", "22", false},
		{"optional port bad", OptionalPort, "ssh", "", true},

		{"ipv4 ok", IPv4, "192.168.1.50", "192.168.1.50", false},
		{"ipv4 v6", IPv4, "::1", "", true},
		{"ipv4 short", IPv4, "10.0.0", "", true},

		{"mac colon", MAC, "AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"mac dash", MAC, "aa-bb-cc-dd-ee-ff", "aa:bb:cc:dd:ee:ff", false},
		{"mac bad", MAC, "aa:bb", "", true},

		{"host ok", Hostname, "nas.lan", "nas.lan", false},
		{"host underscore", Hostname, "my_nas", "", true},
		{"host leading dash", Hostname, "-nas", "", true},

		{"target ip", NetTarget, "8.8.8.8", "8.8.8.8", false},
		{"target host", NetTarget, "google.com", "google.com", false},
		{"target injection", NetTarget, "a.com; reboot", "", true},
		{"target v6", NetTarget, "2001:4860:4860::8888", "2001:4860:4860::8888", false},

		{"url ok", URL, "https://example.com/list.txt", "https://example.com/list.txt", false},
		{"url ftp", URL, "ftp://example.com", "", true},
		{"url relative", URL, "/list.txt", "", true},
		{"http target url", HTTPTarget, " https://example.com/health ", "https://example.com/health", false},
		{"http target host", HTTPTarget, "example.com", "example.com", false},
		{"http target injection", HTTPTarget, "example.com$(reboot)", "", true},
		{"http target ftp", HTTPTarget, "ftp://example.com", "", true},

		{"nonempty", NonEmpty, "  x ", "x", false},
		{"nonempty blank", NonEmpty, " ", "", true},

		{"lines", Lines, " 1.1.1.1 \n\n tls://dns.google ", "1.1.1.1\ntls://dns.google", false},
		{"lines blank", Lines, "\n \n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if err != nil && err.Error() == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	if got := SplitLines(""); got != nil {
		t.Errorf("SplitLines(\"\") = %v", got)
	}
	if got := SplitLines("a\nb"); len(got) != 2 {
		t.Errorf("SplitLines = %v", got)
	}
}
