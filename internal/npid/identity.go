package npid

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"
)

// Identity sources, most to least authoritative.
const (
	SourceSearch   = "search"   // main id arrived with the search result
	SourceProfile  = "profile"  // main id extracted from the profile page
	SourceFallback = "fallback" // main id copied from the primary id
)

// SearchResult is one entity as returned by a backend search, before its
// identifier namespaces are reconciled.
type SearchResult struct {
	PrimaryID  string `json:"primary_id"`
	MainID     string `json:"main_id,omitempty"`
	SportAlias string `json:"sport_alias,omitempty"`
	Name       string `json:"name,omitempty"`
	GradYear   string `json:"grad_year,omitempty"`
	State      string `json:"state,omitempty"`
	Ranking    string `json:"ranking,omitempty"`
}

// AthleteIdentity is a reconciled identifier pair. MainID is never empty
// when PrimaryID is present: it comes from an authoritative lookup or
// falls back to PrimaryID.
type AthleteIdentity struct {
	PrimaryID  string `json:"primary_id"`
	MainID     string `json:"main_id"`
	SportAlias string `json:"sport_alias,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	Source     string `json:"source"`
}

// Ambiguous reports whether the identity was resolved by the
// primary-as-main fallback. The fallback is an empirical workaround, not
// a verified backend contract, so precision-sensitive consumers must
// check this.
func (id AthleteIdentity) Ambiguous() bool { return id.Source == SourceFallback }

// ProfileLookup resolves an entity's main id authoritatively. It is
// pluggable so a reliable source can replace the profile-page scrape if
// the backend ever exposes one.
type ProfileLookup interface {
	MainID(ctx context.Context, primaryID string) (string, error)
}

type identityEntry struct {
	identity AthleteIdentity
	cachedAt time.Time
}

// Resolver reconciles the backend's two identifier namespaces. Resolved
// identities are cached per primary id only for the lifetime of one
// multi-step workflow, never persisted.
type Resolver struct {
	lookup ProfileLookup // may be nil
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]identityEntry
}

// NewResolver creates a resolver. lookup may be nil, in which case only
// search-provided main ids and the documented fallback apply.
func NewResolver(lookup ProfileLookup, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Resolver{
		lookup: lookup,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]identityEntry),
	}
}

// Resolve reconciles one search result into an AthleteIdentity.
//
// Policy, in order: a main id already present on the result is
// authoritative; otherwise the profile lookup is tried when available;
// otherwise the primary id stands in for the main id and the identity is
// flagged ambiguous.
func (r *Resolver) Resolve(ctx context.Context, sr SearchResult) (AthleteIdentity, error) {
	if sr.PrimaryID == "" {
		return AthleteIdentity{}, fmt.Errorf("resolve: search result has no primary id")
	}

	r.mu.Lock()
	if e, ok := r.cache[sr.PrimaryID]; ok && time.Since(e.cachedAt) <= r.ttl {
		r.mu.Unlock()
		return e.identity, nil
	}
	r.mu.Unlock()

	id := AthleteIdentity{
		PrimaryID:  sr.PrimaryID,
		SportAlias: sr.SportAlias,
		SourceName: sr.Name,
	}

	switch {
	case sr.MainID != "":
		id.MainID = sr.MainID
		id.Source = SourceSearch
	default:
		if r.lookup != nil {
			mainID, err := r.lookup.MainID(ctx, sr.PrimaryID)
			if err != nil {
				r.logger.Warn("Authoritative main-id lookup failed, falling back",
					"primary_id", sr.PrimaryID, "error", err)
			} else if mainID != "" {
				id.MainID = mainID
				id.Source = SourceProfile
			}
		}
		if id.MainID == "" {
			// Empirical workaround: sampled entities show the two
			// namespaces coinciding when no authoritative source exists.
			id.MainID = sr.PrimaryID
			id.Source = SourceFallback
			r.logger.Info("Identity resolved by primary-as-main fallback",
				"primary_id", sr.PrimaryID)
		}
	}

	r.mu.Lock()
	r.cache[sr.PrimaryID] = identityEntry{identity: id, cachedAt: time.Now()}
	r.mu.Unlock()
	return id, nil
}

// Reset drops all cached identities; called when a multi-step workflow
// completes.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]identityEntry)
	r.mu.Unlock()
}

// Sweep drops expired cache entries; driven by the maintenance ticker.
func (r *Resolver) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, e := range r.cache {
		if now.Sub(e.cachedAt) > r.ttl {
			delete(r.cache, key)
		}
	}
}

// --------------------------------------------------------------------------
// Profile-page lookup
// --------------------------------------------------------------------------

// The main id hides in several places on the profile media page; these
// mirror the locations observed across page revisions.
var mainIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/athlete/media/\d+/(\d+)`),
	regexp.MustCompile(`name="athlete_main_id"[^>]*value="(\d+)"`),
	regexp.MustCompile(`athlete_main_id["\s:=]+["']?(\d+)`),
	regexp.MustCompile(`athleteMainId["\s:=]+["']?(\d+)`),
}

// profilePageLookup derives the main id from the athlete's profile media
// page using the authenticated session.
type profilePageLookup struct {
	store *SessionStore
}

// NewProfileLookup returns the profile-page-derived authoritative
// lookup.
func NewProfileLookup(store *SessionStore) ProfileLookup {
	return &profilePageLookup{store: store}
}

func (p *profilePageLookup) MainID(ctx context.Context, primaryID string) (string, error) {
	u := p.store.BaseURL() + "/athlete/media/" + primaryID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create profile request: %w", err)
	}
	resp, err := p.store.Client().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile page returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read profile page: %w", err)
	}
	return ExtractMainID(string(body)), nil
}

// ExtractMainID scans a profile page for the main id. Empty when none of
// the known embedding locations match.
func ExtractMainID(page string) string {
	for _, re := range mainIDPatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			return m[1]
		}
	}
	return ""
}
