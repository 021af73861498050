// Package template implements the `[[key]]` / `[[key || fallback]]`
// placeholder grammar shared by SequenceTemplate subjects and bodies. This
// bracket-pipe grammar is small and specific enough that a stdlib regexp
// implementation is simpler than pulling in a general templating engine.
package template

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/allisson/leadsequencer/internal/domain"
)

// placeholderRe matches [[key]] or [[key || fallback]], keys and fallbacks
// trimmed of surrounding whitespace.
var placeholderRe = regexp.MustCompile(`\[\[\s*([^\[\]|]+?)\s*(?:\|\|\s*([^\[\]]*?))?\s*\]\]`)

// SpecialFunc resolves a "special" key against runtime context. aiOpener is
// the only one that reaches outside the process; everything else is a pure
// function of clock/config.
type SpecialFunc func(ctx context.Context, leadID string) (string, bool)

// Options configures a single render pass.
type Options struct {
	// Strict, when true, replaces any placeholder left unresolved after the
	// variable and special-function passes with Replacement instead of "".
	Strict      bool
	Replacement string
	Clock       func() time.Time
}

// Processor renders template strings against a lead's flattened attributes,
// custom variables, and a registry of special functions.
type Processor struct {
	specials map[string]SpecialFunc
}

// New builds a Processor with the standard special-key registry:
// unsubscribe, currentDate/currentYear/currentMonth/currentDay, aiOpener.
func New(baseURL string, aiOpener func(ctx context.Context) (string, error), clock func() time.Time) *Processor {
	if clock == nil {
		clock = time.Now
	}

	p := &Processor{specials: map[string]SpecialFunc{}}

	p.specials["unsubscribe"] = func(ctx context.Context, leadID string) (string, bool) {
		if baseURL == "" || leadID == "" {
			return "", false
		}
		return fmt.Sprintf("%sunsubscribe/%s", baseURL, leadID), true
	}
	p.specials["currentdate"] = func(ctx context.Context, leadID string) (string, bool) {
		return clock().Format("2006-01-02"), true
	}
	p.specials["currentyear"] = func(ctx context.Context, leadID string) (string, bool) {
		return strconv.Itoa(clock().Year()), true
	}
	p.specials["currentmonth"] = func(ctx context.Context, leadID string) (string, bool) {
		return clock().Month().String(), true
	}
	p.specials["currentday"] = func(ctx context.Context, leadID string) (string, bool) {
		return strconv.Itoa(clock().Day()), true
	}
	p.specials["aiopener"] = func(ctx context.Context, leadID string) (string, bool) {
		if aiOpener == nil {
			return "Hi! Let's connect.", true
		}
		text, err := aiOpener(ctx)
		if err != nil {
			return "Hi! Let's connect.", true
		}
		return text, true
	}

	return p
}

// Render expands every [[key]]/[[key || fallback]] placeholder in text.
// Resolution order per occurrence: lead/enrichment/custom variable, special
// function, fallback literal, empty string (or Replacement in strict mode).
// A variable whose value is empty counts as unresolved. enrichment may be
// nil when the lead has no enrichment record; its placeholders then resolve
// like any other missing variable.
func (p *Processor) Render(ctx context.Context, text string, lead domain.Lead, enrichment *domain.LeadEnrichment, custom map[string]string, opts Options) string {
	vars := flatten(lead, enrichment, custom)

	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		key := groups[1]
		fallback := groups[2]
		lowerKey := strings.ToLower(strings.TrimSpace(key))

		if v, ok := vars[lowerKey]; ok && v != "" {
			return v
		}
		if fn, ok := p.specials[lowerKey]; ok {
			if v, resolved := fn(ctx, lead.ID); resolved {
				return v
			}
		}
		if fallback != "" {
			return fallback
		}
		if opts.Strict {
			return opts.Replacement
		}
		return ""
	})
}

// flatten builds the case-insensitive variable namespace: lead attributes,
// title-cased "t"-prefixed variants, enrichment attributes, then custom
// variables (which take precedence on key collision).
func flatten(lead domain.Lead, enrichment *domain.LeadEnrichment, custom map[string]string) map[string]string {
	first := lead.FirstName
	vars := map[string]string{
		"id":          lead.ID,
		"email":       lead.Email,
		"firstname":   lead.FirstName,
		"lastname":    lead.LastName,
		"fullname":    lead.FullName(),
		"jobtitle":    lead.JobTitle,
		"companyname": lead.CompanyName,
		"industry":    lead.Industry,
		"companysize": lead.CompanySize,
		"country":     lead.Country,
		"state":       lead.State,
		"address":     lead.Address,
		"linkedinurl": lead.LinkedinURL,
		"source":      lead.Source,

		"tfirstname":   title(first),
		"tlastname":    title(lead.LastName),
		"tfullname":    title(lead.FullName()),
		"tjobtitle":    title(lead.JobTitle),
		"tcompanyname": title(lead.CompanyName),
		"tindustry":    title(lead.Industry),
		"tcountry":     title(lead.Country),
		"tstate":       title(lead.State),
		"taddress":     title(lead.Address),
		"tsource":      title(lead.Source),
	}

	if enrichment != nil {
		vars["companydomain"] = enrichment.CompanyDomain
		vars["companywebsite"] = enrichment.CompanyWebsite
		vars["companydescription"] = enrichment.CompanyDescription
		vars["companyrevenue"] = enrichment.CompanyRevenue
		vars["technologies"] = enrichment.Technologies
		vars["phonenumber"] = enrichment.PhoneNumber
		vars["twitterurl"] = enrichment.TwitterURL
	}

	for k, v := range custom {
		vars[strings.ToLower(strings.TrimSpace(k))] = v
	}

	return vars
}

func title(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
