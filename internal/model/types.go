package model

import "time"

type Result string

const (
	ResultSuccess Result = "success"
	ResultFail    Result = "fail"
	ResultUnknown Result = "unknown"
)

// UnknownUser is the sentinel attributed to events whose user field is
// missing or a placeholder, so per-user counters still have a key.
const UnknownUser = "unknown"

// Event is the canonical shape every supported log format normalizes to.
// It is produced once per parsed line and not retained after the
// detection pass.
type Event struct {
	Time   time.Time `json:"timestamp"`
	IP     string    `json:"ip"`
	User   string    `json:"user"`
	Action string    `json:"action"`
	Result Result    `json:"result"`
	Raw    string    `json:"raw,omitempty"`
}

type AlertReason string

const (
	ReasonBruteForce        AlertReason = "brute_force"
	ReasonPasswordSpraying  AlertReason = "password_spraying"
	ReasonDistributedAttack AlertReason = "distributed_attack"
	ReasonCountryBlock      AlertReason = "country_block"
	ReasonSuspiciousGeo     AlertReason = "suspicious_geo"
)

// Alert is a write-once detection record. At least one of IP/User is set.
type Alert struct {
	IP      string      `json:"ip,omitempty"`
	User    string      `json:"user,omitempty"`
	Country string      `json:"country,omitempty"`
	Time    time.Time   `json:"timestamp"`
	Reason  AlertReason `json:"reason"`
}

// UserProfile accumulates per-user login history. The country set grows
// monotonically; counters only increment.
type UserProfile struct {
	User             string   `json:"user"`
	KnownCountries   []string `json:"known_countries"`
	SuccessfulLogins int      `json:"successful_logins"`
	FailedLogins     int      `json:"failed_logins"`
}

func (p *UserProfile) KnowsCountry(country string) bool {
	for _, c := range p.KnownCountries {
		if c == country {
			return true
		}
	}
	return false
}
