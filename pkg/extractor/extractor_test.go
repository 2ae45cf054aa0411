package extractor

import (
	"testing"

	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/platform"
)

func testBase(t *testing.T, id platform.ID) Base {
	t.Helper()
	return NewBase(id, Deps{Hub: bus.NewHub(nil)}, false)
}

func TestHarvestSearchLinks(t *testing.T) {
	b := testBase(t, platform.LinkedIn)
	html := `
	<div class="search-results">
		<a href="https://www.linkedin.com/in/john-doe"><img src="https://img.example.com/j.jpg"><span>John Doe</span></a>
		<a href="/in/jane-roe">Jane Roe</a>
		<a href="https://www.linkedin.com/in/john-doe">John Doe duplicate</a>
		<a href="https://www.linkedin.com/feed/">Feed</a>
		<a href="#">anchor</a>
		<a href="javascript:void(0)">js</a>
	</div>`

	got := b.HarvestSearchLinks(html)
	if len(got) != 2 {
		t.Fatalf("harvested %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].ProfileURL != "https://www.linkedin.com/in/john-doe" || got[0].Name != "John Doe" {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[0].ProfileImage != "https://img.example.com/j.jpg" {
		t.Errorf("first candidate image = %q", got[0].ProfileImage)
	}
	if got[1].ProfileURL != "https://www.linkedin.com/in/jane-roe" {
		t.Errorf("relative link not resolved: %+v", got[1])
	}
	for _, p := range got {
		if p.PlatformKey != "linkedin" {
			t.Errorf("platform key = %q", p.PlatformKey)
		}
	}
}

func TestHarvestSearchLinksCap(t *testing.T) {
	b := testBase(t, platform.X)
	var html string
	for i := range 30 {
		html += `<a href="https://x.com/user` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `">U</a>`
	}
	if got := b.HarvestSearchLinks(html); len(got) > maxSearchResults {
		t.Errorf("harvested %d, cap is %d", len(got), maxSearchResults)
	}
}

func TestRegistry(t *testing.T) {
	if Registered("friendster") {
		t.Error("unexpected extractor for unknown platform")
	}
	if _, err := New("friendster", Deps{Hub: bus.NewHub(nil)}); err == nil {
		t.Error("New for unknown platform succeeded")
	}
}
