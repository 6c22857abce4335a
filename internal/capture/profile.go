package capture

import (
	"net/url"
	"regexp"
	"strings"
)

// Profile describes where a site keeps the pieces of a source record. Every
// field is a list of selectors tried in order.
type Profile struct {
	Name  string
	Hosts []string

	PersonName []string
	PersonID   []string
	Birth      []string
	Death      []string
	// PersonIDPattern recovers the person id from the page URL when the page
	// does not show it. The first capture group is the id.
	PersonIDPattern *regexp.Regexp

	SourceItem []string
	Title      []string
	Date       []string
	Citation   []string
	WebPageURL []string
	AttachedBy []string
	AttachedAt []string
	Reason     []string
	Tags       []string

	ExpandToggle []string
	IndexedPanel []string
	FieldRow     []string
	FieldLabel   []string
	FieldValue   []string
	TextBlock    []string
}

// handles reports whether the profile is registered for the URL's host.
func (p *Profile) handles(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range p.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Registry holds the known site profiles.
type Registry struct {
	profiles []*Profile
	generic  *Profile
}

// NewRegistry creates a registry with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(FamilySearchProfile())
	r.generic = GenericProfile()
	return r
}

// Register adds a profile. Earlier registrations win on host overlap.
func (r *Registry) Register(p *Profile) {
	r.profiles = append(r.profiles, p)
}

// ForURL returns the profile for the URL's host, or the generic profile.
func (r *Registry) ForURL(rawURL string) *Profile {
	for _, p := range r.profiles {
		if p.handles(rawURL) {
			return p
		}
	}
	return r.generic
}

// ByName looks a profile up by name.
func (r *Registry) ByName(name string) (*Profile, bool) {
	if name == r.generic.Name {
		return r.generic, true
	}
	for _, p := range r.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Names lists the registered profile names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles)+1)
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	return append(names, r.generic.Name)
}

// FamilySearchProfile targets the person "Sources" page of the FamilySearch tree.
func FamilySearchProfile() *Profile {
	return &Profile{
		Name:            "familysearch",
		Hosts:           []string{"familysearch.org"},
		PersonName:      []string{`[data-testid="person-name"]`, `[data-testid="fullName"]`, `h1`},
		PersonID:        []string{`[data-testid="pid"]`, `[data-testid="person-id"]`},
		Birth:           []string{`[data-testid="lifespan-birth"]`, `[data-testid="person-birth"]`},
		Death:           []string{`[data-testid="lifespan-death"]`, `[data-testid="person-death"]`},
		PersonIDPattern: regexp.MustCompile(`/tree/person/(?:[a-z]+/)?([A-Z0-9]{4}-[A-Z0-9]{2,4})`),

		SourceItem: []string{`[data-testid="source-card"]`, `[data-testid="source-item"]`, `li.source-list-item`},
		Title:      []string{`[data-testid="source-title"]`, `.source-title`, `h3`, `h4`},
		Date:       []string{`[data-testid="source-date"]`, `.source-date`, `time`},
		Citation:   []string{`[data-testid="source-citation"]`, `.citation`},
		WebPageURL: []string{`a[data-testid="source-link"]`, `a.source-link`},
		AttachedBy: []string{`[data-testid="attached-by"]`, `.contributor-name`},
		AttachedAt: []string{`[data-testid="attached-date"]`, `.attached-date`},
		Reason:     []string{`[data-testid="reason-attached"]`, `.reason-statement`},
		Tags:       []string{`[data-testid="source-tag"]`, `.tag-label`},

		ExpandToggle: []string{`[data-testid="indexed-info-toggle"]`, `button[aria-controls][aria-expanded="false"]`},
		IndexedPanel: []string{`[data-testid="indexed-info"]`, `.indexed-information`},
		FieldRow:     []string{`[data-testid="indexed-field"]`, `tr`},
		FieldLabel:   []string{`[data-testid="field-label"]`, `th`, `dt`},
		FieldValue:   []string{`[data-testid="field-value"]`, `td`, `dd`},
		TextBlock:    []string{`[data-testid="indexed-text"]`, `.text-block`},
	}
}

// GenericProfile is the fallback for unknown sites.
func GenericProfile() *Profile {
	return &Profile{
		Name:       "generic",
		PersonName: []string{`.person-name`, `[itemprop="name"]`, `h1`},
		PersonID:   []string{`.person-id`, `[data-person-id]`},
		Birth:      []string{`.birth-date`, `[itemprop="birthDate"]`},
		Death:      []string{`.death-date`, `[itemprop="deathDate"]`},

		SourceItem: []string{`.source`, `article.source`, `li.source`, `.citation-item`},
		Title:      []string{`.source-title`, `.title`, `h2`, `h3`, `h4`},
		Date:       []string{`.source-date`, `.date`, `time`},
		Citation:   []string{`.citation`, `cite`},
		WebPageURL: []string{`a.source-link`, `a[href^="http"]`},
		AttachedBy: []string{`.contributor`, `.attached-by`},
		AttachedAt: []string{`.attached-date`, `.attached-at`},
		Reason:     []string{`.reason`, `.reason-attached`},
		Tags:       []string{`.tag`},

		ExpandToggle: []string{`button[aria-controls]`, `.show-indexed`},
		IndexedPanel: []string{`.indexed-information`, `.indexed`, `.details`},
		FieldRow:     []string{`tr`, `.field`},
		FieldLabel:   []string{`th`, `.label`, `dt`},
		FieldValue:   []string{`td`, `.value`, `dd`},
		TextBlock:    []string{`.text-block`, `p`},
	}
}
