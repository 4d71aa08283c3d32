package tracker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Consultant is one member of the outreach team. Email is the Freshdesk
// agent login used to resolve agent ids during ticket sync; it may be empty
// for consultants without a helpdesk seat.
type Consultant struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// Roster is the fixed set of consultants plus the implied admin view.
type Roster struct {
	Consultants []Consultant
}

// DefaultRoster returns the built-in consultant set used when no roster
// file is supplied.
func DefaultRoster() Roster {
	return Roster{Consultants: []Consultant{
		{Name: "Vandana", Email: "vandana@bookleafpub.in"},
		{Name: "Sapna", Email: "sapna@bookleafpub.in"},
		{Name: "Tannu", Email: "tannu@bookleafpub.in"},
		{Name: "Roosha", Email: "roosha@bookleafpub.in"},
		{Name: "Firdaus", Email: ""},
	}}
}

// LoadRoster reads a YAML roster file of the shape:
//
//	consultants:
//	  - name: Vandana
//	    email: vandana@example.com
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, err
	}
	var doc struct {
		Consultants []Consultant `yaml:"consultants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Roster{}, fmt.Errorf("parse roster %s: %w", path, err)
	}
	roster := Roster{}
	for _, c := range doc.Consultants {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		roster.Consultants = append(roster.Consultants, Consultant{
			Name:  name,
			Email: strings.ToLower(strings.TrimSpace(c.Email)),
		})
	}
	if len(roster.Consultants) == 0 {
		return Roster{}, fmt.Errorf("roster %s defines no consultants", path)
	}
	return roster, nil
}

func (r Roster) Names() []string {
	names := make([]string, 0, len(r.Consultants))
	for _, c := range r.Consultants {
		names = append(names, c.Name)
	}
	return names
}

// IsConsultant reports whether name is one of the enumerated consultants.
// The comparison is exact: views are case-sensitive capability names.
func (r Roster) IsConsultant(name string) bool {
	for _, c := range r.Consultants {
		if c.Name == name {
			return true
		}
	}
	return false
}

// IsValidView accepts "admin" or any consultant name.
func (r Roster) IsValidView(view string) bool {
	return view == ViewAdmin || r.IsConsultant(view)
}

// EmailToName maps lowercase consultant emails to consultant names,
// skipping consultants without an email.
func (r Roster) EmailToName() map[string]string {
	out := map[string]string{}
	for _, c := range r.Consultants {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if email == "" {
			continue
		}
		out[email] = c.Name
	}
	return out
}
