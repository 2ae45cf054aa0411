// Package profile defines the records produced by a deep scan: normalized
// profiles, per-platform results, the scan envelope, and the error taxonomy.
package profile

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/osintkit/deepscan/pkg/pii"
	"github.com/osintkit/deepscan/pkg/platform"
)

// Sentinel errors shared across packages.
var (
	ErrScanInProgress  = errors.New("scan already in progress")
	ErrNoScan          = errors.New("no scan in progress")
	ErrAuthRequired    = errors.New("authentication required")
	ErrPageLoadTimeout = errors.New("page load timeout")
	ErrExtraction      = errors.New("extraction failed")
)

// IdentifierType classifies the search identifier.
type IdentifierType string

// Accepted identifier types. Phone is passed through unmodified, like
// username; email is reduced to its local part before searching.
const (
	IdentifierUsername IdentifierType = "username"
	IdentifierEmail    IdentifierType = "email"
	IdentifierName     IdentifierType = "name"
	IdentifierPhone    IdentifierType = "phone"
)

// ValidIdentifierType reports whether t is one of the accepted types.
func ValidIdentifierType(t IdentifierType) bool {
	switch t {
	case IdentifierUsername, IdentifierEmail, IdentifierName, IdentifierPhone:
		return true
	default:
		return false
	}
}

// SearchQuery derives the query string sent to platform search from an
// identifier. Email identifiers search by local part only.
func SearchQuery(t IdentifierType, value string) string {
	value = strings.TrimSpace(value)
	if t == IdentifierEmail {
		if at := strings.IndexByte(value, '@'); at > 0 {
			return value[:at]
		}
	}
	return value
}

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

// Scan lifecycle states.
const (
	StatusIdle      ScanStatus = "idle"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusCancelled ScanStatus = "cancelled"
	StatusFailed    ScanStatus = "failed"
)

// ResultStatus is the per-platform outcome. Once it leaves scanning it is
// terminal for that platform attempt.
type ResultStatus string

// Platform result states.
const (
	ResultScanning     ResultStatus = "scanning"
	ResultCompleted    ResultStatus = "completed"
	ResultAuthRequired ResultStatus = "auth_required"
	ResultTimeout      ResultStatus = "timeout"
	ResultError        ResultStatus = "error"
)

// Terminal reports whether s is a terminal platform state.
func (s ResultStatus) Terminal() bool { return s != ResultScanning && s != "" }

// ErrorKind is the closed error taxonomy for platform failures.
type ErrorKind string

// Platform error kinds.
const (
	KindAuthRequired     ErrorKind = "auth_required"
	KindTimeout          ErrorKind = "timeout"
	KindBlocked          ErrorKind = "blocked"
	KindExtractionFailed ErrorKind = "extraction_failed"
)

// Retryable reports whether a platform attempt failing with this kind may be
// retried. Auth failures and blocks never are.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindExtractionFailed
}

// PlatformError records one failure on one platform attempt.
type PlatformError struct {
	Kind       ErrorKind `json:"error_type"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	LoginURL   string    `json:"loginUrl,omitempty"`
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Profile is one normalized record extracted from a profile or search page.
// A profile is accepted only when at least one of Name, Username, or
// ProfileURL is present.
type Profile struct {
	Platform     string `json:"platform"`    // display name
	PlatformKey  string `json:"platformKey"` // platform id
	Name         string `json:"name,omitempty"`
	Username     string `json:"username,omitempty"`
	ProfileURL   string `json:"profileUrl,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`

	Bio              string `json:"bio,omitempty"`
	Headline         string `json:"headline,omitempty"`
	Location         string `json:"location,omitempty"`
	Website          string `json:"website,omitempty"`
	Workplace        string `json:"workplace,omitempty"`
	Education        string `json:"education,omitempty"`
	JoinDate         string `json:"joinDate,omitempty"`
	ConnectionDegree string `json:"connectionDegree,omitempty"`

	IsVerified bool `json:"isVerified,omitempty"`
	IsPrivate  bool `json:"isPrivate,omitempty"`

	// Numeric stats are kept as display strings; K/M suffixes survive,
	// commas are stripped where the extractor notes it.
	Followers     string `json:"followers,omitempty"`
	Following     string `json:"following,omitempty"`
	Posts         string `json:"posts,omitempty"`
	Friends       string `json:"friends,omitempty"`
	Connections   string `json:"connections,omitempty"`
	MutualFriends string `json:"mutualFriends,omitempty"`
	Tweets        string `json:"tweets,omitempty"`

	Experience   []string `json:"experience,omitempty"`
	EducationLog []string `json:"educationHistory,omitempty"`

	ExtractedPII *pii.Bundle `json:"extractedPII,omitempty"`
}

// Identified reports whether the profile carries at least one identifying
// field and should be accepted.
func (p *Profile) Identified() bool {
	return p != nil && (p.Name != "" || p.Username != "" || p.ProfileURL != "")
}

// PlatformResult aggregates everything observed for one platform.
type PlatformResult struct {
	Platform      string          `json:"platform"` // display name
	Emoji         string          `json:"emoji"`
	Status        ResultStatus    `json:"status"`
	Profiles      []*Profile      `json:"profiles"`
	SearchResults []*Profile      `json:"searchResults"`
	Errors        []PlatformError `json:"errors"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime,omitzero"`
	Duration      time.Duration   `json:"duration,omitempty"`
}

// NewPlatformResult creates a result in the scanning state for a platform.
func NewPlatformResult(d *platform.Descriptor) *PlatformResult {
	return &PlatformResult{
		Platform:  d.Name,
		Emoji:     d.Emoji,
		Status:    ResultScanning,
		StartTime: time.Now(),
	}
}

// Finish stamps EndTime and Duration, and promotes a still-scanning result
// to completed.
func (r *PlatformResult) Finish() {
	if r.Status == ResultScanning {
		r.Status = ResultCompleted
	}
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Scan is one end-to-end orchestrator execution.
type Scan struct {
	ID                 string                          `json:"id"`
	IdentifierType     IdentifierType                  `json:"identifierType"`
	IdentifierValue    string                          `json:"identifierValue"`
	Platforms          []platform.ID                   `json:"platforms"`
	Status             ScanStatus                      `json:"status"`
	StartTime          time.Time                       `json:"startTime"`
	EndTime            time.Time                       `json:"endTime,omitzero"`
	Progress           int                             `json:"progress"` // 0-100
	CurrentPlatform    platform.ID                     `json:"currentPlatform,omitempty"`
	CompletedPlatforms []platform.ID                   `json:"completedPlatforms"`
	Results            map[platform.ID]*PlatformResult `json:"results"`
	BackendAnalysis    any                             `json:"backendAnalysis,omitempty"`
	BackendError       string                          `json:"backendError,omitempty"`
}

// NewScan validates the request and creates a Running scan.
func NewScan(t IdentifierType, value string, platforms []platform.ID) (*Scan, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("identifier value is empty")
	}
	if !ValidIdentifierType(t) {
		return nil, fmt.Errorf("invalid identifier type %q", t)
	}
	if err := platform.Validate(platforms); err != nil {
		return nil, err
	}
	return &Scan{
		ID:              NewScanID(),
		IdentifierType:  t,
		IdentifierValue: value,
		Platforms:       append([]platform.ID(nil), platforms...),
		Status:          StatusRunning,
		StartTime:       time.Now(),
		Results:         make(map[platform.ID]*PlatformResult, len(platforms)),
	}, nil
}

// MarkCompleted recomputes progress after a platform finishes. Completed
// platforms preserve scan order because the orchestrator runs sequentially.
func (s *Scan) MarkCompleted(id platform.ID) {
	s.CompletedPlatforms = append(s.CompletedPlatforms, id)
	s.Progress = len(s.CompletedPlatforms) * 100 / len(s.Platforms)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Scan) Clone() *Scan {
	if s == nil {
		return nil
	}
	out := *s
	out.Platforms = append([]platform.ID(nil), s.Platforms...)
	out.CompletedPlatforms = append([]platform.ID(nil), s.CompletedPlatforms...)
	out.Results = make(map[platform.ID]*PlatformResult, len(s.Results))
	for id, r := range s.Results {
		rc := *r
		rc.Profiles = append([]*Profile(nil), r.Profiles...)
		rc.SearchResults = append([]*Profile(nil), r.SearchResults...)
		rc.Errors = append([]PlatformError(nil), r.Errors...)
		out.Results[id] = &rc
	}
	return &out
}

// NewScanID builds a scan identifier: "DS-" plus the current time in
// uppercase base-36 and a five character random tail.
func NewScanID() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	tail := strings.ToUpper(strconv.FormatUint(rand.Uint64(), 36))
	for len(tail) < 5 {
		tail = "0" + tail
	}
	return "DS-" + ts + tail[:5]
}
