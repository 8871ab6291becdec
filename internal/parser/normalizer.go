// Package parser turns raw log lines from any supported source format
// into canonical events. Formats are tried in declared order and the
// first match wins.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"authwatch/internal/model"
)

// ErrUnparseable signals that no registered format accepted a line.
var ErrUnparseable = errors.New("line matched no known log format")

// UnparseableError carries the offending line with any embedded user
// token already masked, so diagnostics never leak credentials.
type UnparseableError struct {
	Line string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnparseable, e.Line)
}

func (e *UnparseableError) Unwrap() error { return ErrUnparseable }

type Registry struct {
	formats []Format
}

// NewRegistry returns a registry preloaded with the four built-in
// formats: structured key-value, Apache/Nginx combined, sshd syslog and
// Windows security-event CSV.
func NewRegistry() *Registry {
	return &Registry{formats: builtinFormats()}
}

// Register appends a format after the built-ins.
func (r *Registry) Register(f Format) {
	r.formats = append(r.formats, f)
}

// Normalize runs the registry scan over one raw line. An extractor
// failing on matched content is treated as a non-match and the scan
// continues with the next format.
func (r *Registry) Normalize(line string) (model.Event, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return model.Event{}, &UnparseableError{Line: ""}
	}
	for _, f := range r.formats {
		m := f.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		ev, err := f.extract(m)
		if err != nil {
			continue
		}
		ev.Raw = trimmed
		return ev, nil
	}
	return model.Event{}, &UnparseableError{Line: MaskUser(trimmed)}
}

var (
	reMaskKV   = regexp.MustCompile(`(?i)(user[:=]\s*)([^,\s]+)`)
	reMaskSSH  = regexp.MustCompile(`(password for (?:invalid user )?)(\S+)`)
	reMaskCSV  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},[\d.]*,)([^,]+)(,.*)$`)
	redactMark = "[redacted]"
)

// MaskUser replaces user tokens recognizable in any supported format
// with a stable redaction marker.
func MaskUser(line string) string {
	masked := reMaskKV.ReplaceAllString(line, "${1}"+redactMark)
	masked = reMaskSSH.ReplaceAllString(masked, "${1}"+redactMark)
	masked = reMaskCSV.ReplaceAllString(masked, "${1}"+redactMark+"${3}")
	return masked
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "login", "ssh_login", "post":
		return "login"
	default:
		return strings.ToLower(strings.TrimSpace(action))
	}
}

func normalizeResult(result string) model.Result {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "fail", "failed", "403":
		return model.ResultFail
	case "accepted", "success", "200":
		return model.ResultSuccess
	default:
		return model.ResultUnknown
	}
}

func normalizeUser(user string) string {
	user = strings.TrimSpace(user)
	if user == "" || user == "-" {
		return model.UnknownUser
	}
	return user
}
