package authdetect

import (
	"context"
	"testing"

	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/tab"
)

const loggedInFacebook = `<div aria-label="Your profile"></div><div data-pagelet="LeftRail"></div>`
const facebookLoginForm = `<form action="/login/device-based/"><button id="loginbutton">Log In</button></form>`

func servePage(t *testing.T, url string, page *tab.FakePage) tab.Page {
	t.Helper()
	f := tab.NewFake()
	f.Serve(url, page)
	id, err := f.Create(context.Background(), url, true)
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.Page(id)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		id      platform.ID
		url     string
		content string
		cookies map[string]string
		want    bool
	}{
		{
			name:    "cookie on normal page",
			id:      platform.Facebook,
			url:     "https://www.facebook.com/john.doe",
			content: "<div>profile</div>",
			cookies: map[string]string{"c_user": "100001", "xs": "abc"},
			want:    true,
		},
		{
			name:    "cookie but on login form page",
			id:      platform.Facebook,
			url:     "https://www.facebook.com/john.doe",
			content: facebookLoginForm,
			cookies: map[string]string{"c_user": "100001"},
			want:    false,
		},
		{
			name:    "no cookie but logged-in DOM",
			id:      platform.Facebook,
			url:     "https://www.facebook.com/",
			content: loggedInFacebook,
			want:    true,
		},
		{
			name:    "logged-in DOM on login URL",
			id:      platform.Facebook,
			url:     "https://www.facebook.com/login",
			content: loggedInFacebook,
			want:    false,
		},
		{
			name:    "nothing",
			id:      platform.Facebook,
			url:     "https://www.facebook.com/",
			content: "<div>welcome</div>",
			want:    false,
		},
		{
			name:    "instagram session cookie",
			id:      platform.Instagram,
			url:     "https://www.instagram.com/",
			content: "<div>feed</div>",
			cookies: map[string]string{"sessionid": "s3ss10n"},
			want:    true,
		},
		{
			name:    "instagram login page",
			id:      platform.Instagram,
			url:     "https://www.instagram.com/accounts/login/",
			content: `<form id="loginForm"><input name="username"></form>`,
			want:    false,
		},
		{
			name:    "x auth token",
			id:      platform.X,
			url:     "https://x.com/home",
			content: `<a data-testid="AppTabBar_Home_Link"></a>`,
			cookies: map[string]string{"auth_token": "tok"},
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := servePage(t, tt.url, &tab.FakePage{Content: tt.content, CookieMap: tt.cookies})
			d := New()
			verdict, err := d.Detect(context.Background(), tt.id, page)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if verdict.Authenticated != tt.want {
				t.Errorf("Authenticated = %v, want %v", verdict.Authenticated, tt.want)
			}
			if !tt.want && verdict.LoginURL == "" {
				t.Error("unauthenticated verdict is missing the login URL")
			}
		})
	}
}

func TestDetectFallbackSource(t *testing.T) {
	page := servePage(t, "https://www.linkedin.com/in/john", &tab.FakePage{Content: "<div>profile</div>"})

	static := NewStaticSource(map[platform.ID]map[string]string{
		platform.LinkedIn: {"li_at": "cookie-from-store"},
	})
	d := New(WithFallbackSources(static))

	verdict, err := d.Detect(context.Background(), platform.LinkedIn, page)
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Authenticated {
		t.Error("fallback cookie source was not consulted")
	}
	if !verdict.HasAuthCookie {
		t.Error("HasAuthCookie = false with fallback cookie present")
	}
}

func TestDetectUnknownPlatform(t *testing.T) {
	page := servePage(t, "https://example.com/", &tab.FakePage{Content: "x"})
	if _, err := New().Detect(context.Background(), "friendster", page); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestLoginURL(t *testing.T) {
	got, err := LoginURL(platform.Instagram)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://www.instagram.com/accounts/login/" {
		t.Errorf("LoginURL = %q", got)
	}
	if _, err := LoginURL("friendster"); err == nil {
		t.Error("expected error for unknown platform")
	}
}
