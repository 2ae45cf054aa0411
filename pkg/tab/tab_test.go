package tab

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeServesCannedPage(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Serve("https://example.com/", &FakePage{
		Content:   "<h1>hi</h1>",
		CookieMap: map[string]string{"session": "abc"},
	})

	id, err := f.Create(ctx, "https://example.com/profile?x=1", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AwaitLoad(ctx, id, time.Second); err != nil {
		t.Fatalf("AwaitLoad: %v", err)
	}

	page, err := f.Page(id)
	if err != nil {
		t.Fatal(err)
	}
	url, _ := page.URL(ctx)
	if url != "https://example.com/profile?x=1" {
		t.Errorf("URL = %q", url)
	}
	html, _ := page.HTML(ctx)
	if html != "<h1>hi</h1>" {
		t.Errorf("HTML = %q", html)
	}
	cookies, _ := page.Cookies(ctx)
	if cookies["session"] != "abc" {
		t.Errorf("cookies = %v", cookies)
	}
}

func TestFakeNeverLoadTimesOut(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.NeverLoad("https://slow.example.com/")

	id, err := f.Create(ctx, "https://slow.example.com/page", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AwaitLoad(ctx, id, 20*time.Millisecond); !errors.Is(err, ErrLoadTimeout) {
		t.Errorf("AwaitLoad error = %v, want ErrLoadTimeout", err)
	}
}

func TestFakeDelayedLoad(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.DelayLoad("https://example.com/", 10*time.Millisecond)

	id, _ := f.Create(ctx, "https://example.com/", true)
	if err := f.AwaitLoad(ctx, id, time.Second); err != nil {
		t.Errorf("AwaitLoad after delay: %v", err)
	}
}

func TestFakeAwaitLoadHonorsContext(t *testing.T) {
	f := NewFake()
	f.NeverLoad("https://slow.example.com/")
	id, _ := f.Create(context.Background(), "https://slow.example.com/", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.AwaitLoad(ctx, id, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("AwaitLoad error = %v, want context.Canceled", err)
	}
}

func TestFakeCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	id, _ := f.Create(ctx, "https://example.com/", true)

	if f.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d", f.OpenCount())
	}
	if err := f.Close(id); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(id); err != nil {
		t.Fatal(err)
	}
	if f.OpenCount() != 0 {
		t.Errorf("OpenCount = %d after double close", f.OpenCount())
	}
	if f.CloseCalls(id) != 2 {
		t.Errorf("CloseCalls = %d, want 2", f.CloseCalls(id))
	}
	if _, err := f.Page(id); !errors.Is(err, ErrTabClosed) {
		t.Errorf("Page after close = %v, want ErrTabClosed", err)
	}
}

func TestFakeTracksOpenHighWaterMark(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	a, _ := f.Create(ctx, "https://one.example.com/", true)
	if err := f.Close(a); err != nil {
		t.Fatal(err)
	}
	b, _ := f.Create(ctx, "https://two.example.com/", true)
	if err := f.Close(b); err != nil {
		t.Fatal(err)
	}

	if f.MaxOpen() != 1 {
		t.Errorf("MaxOpen = %d, want 1", f.MaxOpen())
	}
	want := []string{"https://one.example.com/", "https://two.example.com/"}
	got := f.CreatedURLs()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CreatedURLs = %v, want %v", got, want)
	}
}

func TestFakePageRedirect(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Serve("https://example.com/old", &FakePage{FinalURL: "https://example.com/new"})

	id, _ := f.Create(ctx, "https://example.com/old", true)
	page, err := f.Page(id)
	if err != nil {
		t.Fatal(err)
	}
	if url, _ := page.URL(ctx); url != "https://example.com/new" {
		t.Errorf("URL = %q, want redirect target", url)
	}
}

func TestFakePageRecordsInteractions(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	fp := &FakePage{}
	f.Serve("https://example.com/", fp)

	id, _ := f.Create(ctx, "https://example.com/", true)
	page, _ := f.Page(id)

	if err := page.Click(ctx, "input#q"); err != nil {
		t.Fatal(err)
	}
	if err := page.SetValue(ctx, "input#q", "hello"); err != nil {
		t.Fatal(err)
	}

	if clicks := fp.Clicks(); len(clicks) != 1 || clicks[0] != "input#q" {
		t.Errorf("Clicks = %v", clicks)
	}
	if fp.Inputs()["input#q"] != "hello" {
		t.Errorf("Inputs = %v", fp.Inputs())
	}
}
