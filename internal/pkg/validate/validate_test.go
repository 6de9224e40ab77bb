package validate

import "testing"

func TestTimeZone(t *testing.T) {
	tests := []struct {
		name    string
		zone    string
		wantErr bool
	}{
		{"utc", "UTC", false},
		{"region", "America/New_York", false},
		{"europe", "Europe/Berlin", false},
		{"empty", "", true},
		{"local", "Local", true},
		{"unknown", "Mars/Olympus_Mons", true},
		{"garbage", "not a zone", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := TimeZone(tt.zone)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TimeZone(%q) error = %v, wantErr %v", tt.zone, err, tt.wantErr)
			}
			if !tt.wantErr && loc.String() != tt.zone {
				t.Errorf("TimeZone(%q) = %s", tt.zone, loc)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "user@example.com", false},
		{"with dots", "first.last@example.com", false},
		{"with plus", "user+tag@example.com", false},
		{"with subdomain", "user@sub.example.com", false},
		{"empty", "", true},
		{"no at sign", "userexample.com", true},
		{"no domain", "user@", true},
		{"no TLD", "user@example", true},
		{"spaces", "user @example.com", true},
		{"arbitrary string", "not-an-email", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Email(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("Email(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}
