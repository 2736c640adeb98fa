package env

import "fmt"

// Environment is the deployment the server runs in. It is read from ENV and
// gates behavior such as whether in-memory storage is allowed.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

func (e Environment) IsDevelopment() bool { return e == Development }
func (e Environment) IsProduction() bool  { return e == Production }

func (e Environment) String() string { return string(e) }

// UnmarshalText rejects names other than development and production.
func (e *Environment) UnmarshalText(text []byte) error {
	switch v := Environment(text); v {
	case Development, Production:
		*e = v
		return nil
	default:
		return fmt.Errorf("unknown environment %q: want %q or %q", text, Development, Production)
	}
}
