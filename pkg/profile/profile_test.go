package profile

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/osintkit/deepscan/pkg/platform"
)

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		typ   IdentifierType
		value string
		want  string
	}{
		{"username passes through", IdentifierUsername, "john_doe", "john_doe"},
		{"email uses local part", IdentifierEmail, "john@example.com", "john"},
		{"email without at sign", IdentifierEmail, "john", "john"},
		{"name passes through", IdentifierName, "John Doe", "John Doe"},
		{"phone passes through", IdentifierPhone, "+94771234567", "+94771234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchQuery(tt.typ, tt.value); got != tt.want {
				t.Errorf("SearchQuery(%v, %q) = %q, want %q", tt.typ, tt.value, got, tt.want)
			}
		})
	}
}

func TestNewScanValidation(t *testing.T) {
	tests := []struct {
		name      string
		typ       IdentifierType
		value     string
		platforms []platform.ID
		wantErr   bool
	}{
		{"valid", IdentifierUsername, "john", []platform.ID{platform.Facebook}, false},
		{"trims whitespace", IdentifierUsername, "  john  ", []platform.ID{platform.X}, false},
		{"empty value", IdentifierUsername, "   ", []platform.ID{platform.Facebook}, true},
		{"bad type", "passport", "john", []platform.ID{platform.Facebook}, true},
		{"unknown platform", IdentifierUsername, "john", []platform.ID{"friendster"}, true},
		{"no platforms", IdentifierUsername, "john", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan, err := NewScan(tt.typ, tt.value, tt.platforms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewScan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if scan.Status != StatusRunning {
				t.Errorf("Status = %v, want %v", scan.Status, StatusRunning)
			}
			if scan.IdentifierValue != "john" {
				t.Errorf("IdentifierValue = %q, want trimmed %q", scan.IdentifierValue, "john")
			}
		})
	}
}

var scanIDPattern = regexp.MustCompile(`^DS-[0-9A-Z]+[0-9A-Z]{5}$`)

func TestNewScanID(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		id := NewScanID()
		if !scanIDPattern.MatchString(id) {
			t.Fatalf("scan id %q does not match expected shape", id)
		}
		if seen[id] {
			t.Fatalf("duplicate scan id %q", id)
		}
		seen[id] = true
	}
}

func TestMarkCompletedProgress(t *testing.T) {
	scan, err := NewScan(IdentifierUsername, "john",
		[]platform.ID{platform.Facebook, platform.LinkedIn, platform.X, platform.Instagram})
	if err != nil {
		t.Fatal(err)
	}

	wantProgress := []int{25, 50, 75, 100}
	for i, id := range scan.Platforms {
		scan.MarkCompleted(id)
		if scan.Progress != wantProgress[i] {
			t.Errorf("after %d platforms Progress = %d, want %d", i+1, scan.Progress, wantProgress[i])
		}
		if len(scan.CompletedPlatforms) > len(scan.Platforms) {
			t.Fatal("completed platforms exceeds requested platforms")
		}
	}
	if diff := cmp.Diff(scan.Platforms, scan.CompletedPlatforms); diff != "" {
		t.Errorf("completed order mismatch (-platforms +completed):\n%s", diff)
	}
}

func TestIdentified(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		want    bool
	}{
		{"nil", nil, false},
		{"empty", &Profile{Platform: "Facebook"}, false},
		{"name only", &Profile{Name: "John"}, true},
		{"username only", &Profile{Username: "john"}, true},
		{"url only", &Profile{ProfileURL: "https://x.com/john"}, true},
		{"stats only", &Profile{Followers: "10K"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Identified(); got != tt.want {
				t.Errorf("Identified() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlatformResultFinish(t *testing.T) {
	d, err := platform.Lookup(platform.Facebook)
	if err != nil {
		t.Fatal(err)
	}
	r := NewPlatformResult(d)
	if r.Status != ResultScanning {
		t.Fatalf("new result status = %v, want scanning", r.Status)
	}
	time.Sleep(time.Millisecond)
	r.Finish()
	if r.Status != ResultCompleted {
		t.Errorf("finished status = %v, want completed", r.Status)
	}
	if r.EndTime.Before(r.StartTime) {
		t.Error("EndTime precedes StartTime")
	}
	if r.Duration != r.EndTime.Sub(r.StartTime) {
		t.Errorf("Duration = %v, want %v", r.Duration, r.EndTime.Sub(r.StartTime))
	}

	// Terminal statuses are preserved.
	r2 := NewPlatformResult(d)
	r2.Status = ResultAuthRequired
	r2.Finish()
	if r2.Status != ResultAuthRequired {
		t.Errorf("auth_required was overwritten to %v", r2.Status)
	}
}

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindTimeout, true},
		{KindExtractionFailed, true},
		{KindAuthRequired, false},
		{KindBlocked, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanClone(t *testing.T) {
	scan, err := NewScan(IdentifierUsername, "john", []platform.ID{platform.Facebook})
	if err != nil {
		t.Fatal(err)
	}
	d, _ := platform.Lookup(platform.Facebook)
	scan.Results[platform.Facebook] = NewPlatformResult(d)
	scan.Results[platform.Facebook].Profiles = []*Profile{{Name: "John"}}

	clone := scan.Clone()
	clone.Results[platform.Facebook].Profiles = append(clone.Results[platform.Facebook].Profiles, &Profile{Name: "Jane"})
	clone.MarkCompleted(platform.Facebook)

	if len(scan.Results[platform.Facebook].Profiles) != 1 {
		t.Error("mutating clone's profiles affected the original")
	}
	if len(scan.CompletedPlatforms) != 0 {
		t.Error("mutating clone's completion affected the original")
	}
}
