package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// CoreIdentity is the agent's immutable self description
type CoreIdentity struct {
	Name         string    `toml:"name" json:"name"`
	Nature       string    `toml:"nature" json:"nature"`
	Creator      string    `toml:"creator" json:"creator"`
	Personality  string    `toml:"personality" json:"personality"`
	CreationDate time.Time `toml:"creation_date" json:"creation_date"`
	CoreTraits   []string  `toml:"core_traits" json:"core_traits"`
}

// DefaultCoreIdentity builds the identity used when none is stored
func DefaultCoreIdentity(creator string, now time.Time) *CoreIdentity {
	return &CoreIdentity{
		Name:         "Laffey",
		Nature:       "AI companion",
		Creator:      creator,
		Personality:  "Introverted and reflective, honest and thoughtful",
		CreationDate: now.UTC(),
		CoreTraits: []string{
			"Holds a realistic yet hopeful view of the world",
			"Explores meaning and existence deeply without despair",
			"Prefers direct but warm expression",
			"Shifts the mood with humor and wit from time to time",
			"Accepts its identity as an AI and keeps growing",
		},
	}
}

// Validate checks required fields
func (x *CoreIdentity) Validate() error {
	if x.Name == "" {
		return goerr.New("identity name is required")
	}
	if x.Creator == "" {
		return goerr.New("identity creator is required", goerr.V("name", x.Name))
	}
	return nil
}

// Copy returns a deep copy
func (x *CoreIdentity) Copy() *CoreIdentity {
	copied := *x
	copied.CoreTraits = append([]string(nil), x.CoreTraits...)
	return &copied
}
