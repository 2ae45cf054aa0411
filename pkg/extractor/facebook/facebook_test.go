package facebook

import (
	"context"
	"testing"

	"github.com/osintkit/deepscan/pkg/authdetect"
	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/tab"
)

const profileFixture = `<html><head>
<meta property="og:title" content="John Doe | Facebook" />
<meta property="og:image" content="https://scontent.example.com/john.jpg" />
</head><body>
<h1>John Doe</h1>
<div data-testid="profile_intro_card_bio">Photographer. Reach me at john@example.com</div>
<span>Works at Example Studios</span>
<span>Studied at Example University</span>
<span>Lives in Colombo</span>
<span>1,234 friends</span>
<span>5 mutual friends</span>
</body></html>`

func TestParseProfile(t *testing.T) {
	p := parseProfile(profileFixture, "https://www.facebook.com/john.doe")

	if p.Name != "John Doe" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Username != "john.doe" {
		t.Errorf("Username = %q", p.Username)
	}
	if p.Bio == "" {
		t.Error("Bio is empty")
	}
	if p.Workplace != "Example Studios" {
		t.Errorf("Workplace = %q", p.Workplace)
	}
	if p.Education != "Example University" {
		t.Errorf("Education = %q", p.Education)
	}
	if p.Location != "Colombo" {
		t.Errorf("Location = %q", p.Location)
	}
	if p.Friends != "1234" {
		t.Errorf("Friends = %q", p.Friends)
	}
	if p.MutualFriends != "5" {
		t.Errorf("MutualFriends = %q", p.MutualFriends)
	}
	if p.ExtractedPII == nil || len(p.ExtractedPII.Emails) != 1 {
		t.Errorf("ExtractedPII = %+v, want the bio email", p.ExtractedPII)
	}
	if !p.Identified() {
		t.Error("profile not identified")
	}
}

func TestParseProfileOGFallback(t *testing.T) {
	html := `<head><meta property="og:title" content="Jane Roe | Facebook" /></head>`
	p := parseProfile(html, "https://www.facebook.com/jane.roe")
	if p.Name != "Jane Roe" {
		t.Errorf("Name = %q, want og:title fallback", p.Name)
	}
}

func TestExtractUsername(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.facebook.com/john.doe", "john.doe"},
		{"https://www.facebook.com/people/John-Doe/100001", "100001"},
		{"https://www.facebook.com/login", ""},
		{"https://example.com/nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := extractUsername(tt.url); got != tt.want {
				t.Errorf("extractUsername(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestAuthGateBlocksExtraction(t *testing.T) {
	hub := bus.NewHub(nil)
	events, cancel := hub.Subscribe(4)
	defer cancel()

	ext, err := extractor.New(platform.Facebook, extractor.Deps{Hub: hub, Detector: authdetect.New()})
	if err != nil {
		t.Fatal(err)
	}

	f := tab.NewFake()
	url := "https://www.facebook.com/search/people/?q=john"
	f.Serve(url, &tab.FakePage{Content: `<button id="loginbutton">Log In</button>`})
	id, err := f.Create(context.Background(), url, true)
	if err != nil {
		t.Fatal(err)
	}
	page, err := f.Page(id)
	if err != nil {
		t.Fatal(err)
	}

	if err := ext.ExtractSearchResults(context.Background(), page, extractor.Query{Value: "john"}); err == nil {
		t.Fatal("expected auth gate error")
	}

	select {
	case ev := <-events:
		if ev.Kind != bus.EventAuthRequired {
			t.Errorf("event = %v, want authenticationRequired", ev.Kind)
		}
		data, ok := ev.Data.(extractor.AuthRequiredEvent)
		if !ok {
			t.Fatalf("event data type %T", ev.Data)
		}
		if data.LoginURL != "https://www.facebook.com/login" {
			t.Errorf("login url = %q", data.LoginURL)
		}
	default:
		t.Fatal("no authenticationRequired event published")
	}
}

func TestOnPageLoadAutoExtractsProfile(t *testing.T) {
	hub := bus.NewHub(nil)
	events, cancel := hub.Subscribe(4)
	defer cancel()

	ext, err := extractor.New(platform.Facebook, extractor.Deps{Hub: hub, Detector: authdetect.New()})
	if err != nil {
		t.Fatal(err)
	}

	f := tab.NewFake()
	url := "https://www.facebook.com/john.doe"
	f.Serve(url, &tab.FakePage{
		Content:   profileFixture,
		CookieMap: map[string]string{"c_user": "100001"},
	})
	id, err := f.Create(context.Background(), url, false)
	if err != nil {
		t.Fatal(err)
	}
	page, err := f.Page(id)
	if err != nil {
		t.Fatal(err)
	}

	if err := ext.OnPageLoad(context.Background(), page); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Kind != bus.EventProfileData {
			t.Fatalf("event = %v, want profileDataExtracted", ev.Kind)
		}
		data, ok := ev.Data.(extractor.ProfileDataEvent)
		if !ok {
			t.Fatalf("event data type %T", ev.Data)
		}
		if data.Profile.Name != "John Doe" || data.Profile.Username != "john.doe" {
			t.Errorf("profile = %+v", data.Profile)
		}
	default:
		t.Fatal("no profileDataExtracted event published")
	}
}
