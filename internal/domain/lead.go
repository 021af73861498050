// Package domain defines the core entities shared by the scheduler, pump,
// and worker: leads, sequences, templates, per-lead progress, and the
// outbox rows that hand work off between them.
package domain

// EmailValidity mirrors the source catalog's isEmailValid enum.
type EmailValidity string

const (
	EmailValidityValid   EmailValidity = "VALID"
	EmailValidityInvalid EmailValidity = "INVALID"
	EmailValidityUnknown EmailValidity = "UNKNOWN"
)

// Lead is the read-only identity and profile record this core consumes.
// It is written by an external enrollment/CRM system.
type Lead struct {
	ID                  string
	Email               string
	FirstName           string
	LastName            string
	CompanyName         string
	Industry            string
	CompanySize         string
	Country             string
	State               string
	Address             string
	LinkedinURL         string
	Source              string
	JobTitle            string
	IsSubscribedToEmail bool
	IsEmailValid        EmailValidity
}

// FullName returns the concatenation of first and last name, trimmed.
func (l Lead) FullName() string {
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	default:
		return l.LastName
	}
}

// LeadEnrichment is the optional third-party enrichment record attached to
// a Lead by an external provider. Not every lead has one; a lead without a
// row here renders with the enrichment placeholders empty rather than
// failing the send.
type LeadEnrichment struct {
	LeadID             string
	CompanyDomain      string
	CompanyWebsite     string
	CompanyDescription string
	CompanyRevenue     string
	Technologies       string
	PhoneNumber        string
	TwitterURL         string
}
