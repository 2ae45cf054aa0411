package x

import "testing"

const profileFixture = `<html><body>
<div data-testid="UserName">Alice Dev <span>@alicedev</span></div>
<div data-testid="UserDescription">Gopher. alice@example.com</div>
<span data-testid="UserLocation">Colombo</span>
<a data-testid="UserUrl">https://alice.example.com</a>
<span>1,234 Followers</span>
<span>567 Following</span>
<span>8,910 posts</span>
<span>Joined March 2015</span>
<span aria-label="Verified account"></span>
</body></html>`

func TestParseProfile(t *testing.T) {
	p := parseProfile(profileFixture, "https://x.com/alicedev")

	if p.Name != "Alice Dev" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Username != "alicedev" {
		t.Errorf("Username = %q", p.Username)
	}
	if p.Bio != "Gopher. alice@example.com" {
		t.Errorf("Bio = %q", p.Bio)
	}
	if p.Location != "Colombo" {
		t.Errorf("Location = %q", p.Location)
	}
	if p.Website != "https://alice.example.com" {
		t.Errorf("Website = %q", p.Website)
	}
	if p.Followers != "1234" || p.Following != "567" || p.Tweets != "8910" {
		t.Errorf("stats = %q/%q/%q", p.Followers, p.Following, p.Tweets)
	}
	if p.JoinDate != "March 2015" {
		t.Errorf("JoinDate = %q", p.JoinDate)
	}
	if !p.IsVerified {
		t.Error("IsVerified = false")
	}
	if p.IsPrivate {
		t.Error("IsPrivate = true for public profile")
	}
	if p.ExtractedPII == nil || len(p.ExtractedPII.Emails) != 1 {
		t.Errorf("ExtractedPII = %+v, want the bio email", p.ExtractedPII)
	}
}

func TestParseProfileUsernameFromNameBlock(t *testing.T) {
	html := `<div data-testid="UserName">Bob Builder <span>@bob_b</span></div>`
	p := parseProfile(html, "https://x.com/i/flow/login")
	if p.Name != "Bob Builder" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Username != "bob_b" {
		t.Errorf("Username = %q, want handle from name block", p.Username)
	}
}

func TestParseProfileProtected(t *testing.T) {
	html := profileFixture + `<div>These posts are protected</div>`
	p := parseProfile(html, "https://x.com/alicedev")
	if !p.IsPrivate {
		t.Error("IsPrivate = false for protected account")
	}
}

func TestParseProfileOGFallback(t *testing.T) {
	html := `<head><meta property="og:title" content="Carol (@carol_c) / X" /></head>`
	p := parseProfile(html, "https://twitter.com/carol_c")
	if p.Name != "Carol" {
		t.Errorf("Name = %q, want og:title fallback", p.Name)
	}
	if p.Username != "carol_c" {
		t.Errorf("Username = %q", p.Username)
	}
}

func TestExtractUsername(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.com/alicedev", "alicedev"},
		{"https://twitter.com/alicedev", "alicedev"},
		{"https://x.com/search?q=alice", ""},
		{"https://x.com/i/flow/login", ""},
		{"https://example.com/alicedev", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := extractUsername(tt.url); got != tt.want {
				t.Errorf("extractUsername(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
