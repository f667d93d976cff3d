package portal

import "testing"

func TestPortalURLDerivation(t *testing.T) {
	cases := []struct {
		name        string
		address     string
		alternative bool
		want        string
	}{
		{
			name:    "stb web root with trailing slash",
			address: "http://portal.example.com/c/",
			want:    "http://portal.example.com/server/load.php",
		},
		{
			name:    "stb web root without trailing slash",
			address: "http://portal.example.com/c",
			want:    "http://portal.example.com/server/load.php",
		},
		{
			name:    "bare host gets stalker_portal prefix",
			address: "http://portal.example.com",
			want:    "http://portal.example.com/stalker_portal/server/load.php",
		},
		{
			name:    "bare host with port",
			address: "http://portal.example.com:8080",
			want:    "http://portal.example.com:8080/stalker_portal/server/load.php",
		},
		{
			name:        "alternative context path",
			address:     "http://portal.example.com/c/",
			alternative: true,
			want:        "http://portal.example.com/portal.php",
		},
		{
			name:        "alternative context path on bare host",
			address:     "https://portal.example.com",
			alternative: true,
			want:        "https://portal.example.com/stalker_portal/portal.php",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PortalURL(tc.address, tc.alternative)
			if err != nil {
				t.Fatalf("PortalURL(%q) returned error: %v", tc.address, err)
			}
			if got != tc.want {
				t.Fatalf("PortalURL(%q) = %q, want %q", tc.address, got, tc.want)
			}
		})
	}
}

func TestPortalURLRejectsInvalidAddresses(t *testing.T) {
	for _, address := range []string{"", "   ", "portal.example.com", "/c/"} {
		if _, err := PortalURL(address, false); err == nil {
			t.Fatalf("PortalURL(%q) should fail", address)
		}
	}
}
