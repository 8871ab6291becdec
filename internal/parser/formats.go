package parser

import (
	"fmt"
	"regexp"
	"time"

	"authwatch/internal/model"
)

// Format pairs an anchored matcher with an extractor. The extractor may
// fail on malformed captured content (typically the timestamp) without
// taking the registry scan down with it.
type Format struct {
	Name    string
	re      *regexp.Regexp
	extract func(m []string) (model.Event, error)
}

const (
	authLayout     = "2006-01-02 15:04:05"
	combinedLayout = "02/Jan/2006:15:04:05 -0700"
	syslogLayout   = "2006 Jan _2 15:04:05"
	csvLayout      = "2006-01-02 15:04:05"
)

var (
	reAuth = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}), IP: ([\d.]+), user: ([^,]+), action: (\w+), result: (\w+)`)

	// Apache/Nginx combined log. Only the request method, authuser and
	// status are of interest.
	reCombined = regexp.MustCompile(`^([\d.]+) \S+ (\S+) \[([^\]]+)\] "(\S+)[^"]*" (\d{3})`)

	reSyslogSSH = regexp.MustCompile(`^([A-Z][a-z]{2} {1,2}\d{1,2} \d{2}:\d{2}:\d{2}) \S+ sshd\[\d+\]: (Failed|Accepted) password for (?:invalid user )?(\S+) from ([\d.]+)`)

	// Flat CSV rows produced by the Windows security-event export.
	reWindowsCSV = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}),([\d.]+),([^,]*),([^,]*),([^,\s]*)\s*$`)
)

func builtinFormats() []Format {
	return []Format{
		{
			Name: "auth",
			re:   reAuth,
			extract: func(m []string) (model.Event, error) {
				ts, err := time.Parse(authLayout, m[1])
				if err != nil {
					return model.Event{}, err
				}
				return model.Event{
					Time:   ts.UTC(),
					IP:     m[2],
					User:   normalizeUser(m[3]),
					Action: normalizeAction(m[4]),
					Result: normalizeResult(m[5]),
				}, nil
			},
		},
		{
			Name: "combined",
			re:   reCombined,
			extract: func(m []string) (model.Event, error) {
				ts, err := time.Parse(combinedLayout, m[3])
				if err != nil {
					return model.Event{}, err
				}
				return model.Event{
					Time:   ts.UTC(),
					IP:     m[1],
					User:   normalizeUser(m[2]),
					Action: normalizeAction(m[4]),
					Result: normalizeResult(m[5]),
				}, nil
			},
		},
		{
			Name: "sshd",
			re:   reSyslogSSH,
			extract: func(m []string) (model.Event, error) {
				// syslog timestamps carry no year; assume the current one.
				stamped := fmt.Sprintf("%d %s", time.Now().Year(), m[1])
				ts, err := time.Parse(syslogLayout, stamped)
				if err != nil {
					return model.Event{}, err
				}
				return model.Event{
					Time:   ts.UTC(),
					IP:     m[4],
					User:   normalizeUser(m[3]),
					Action: normalizeAction("ssh_login"),
					Result: normalizeResult(m[2]),
				}, nil
			},
		},
		{
			Name: "windows",
			re:   reWindowsCSV,
			extract: func(m []string) (model.Event, error) {
				ts, err := time.Parse(csvLayout, m[1])
				if err != nil {
					return model.Event{}, err
				}
				return model.Event{
					Time:   ts.UTC(),
					IP:     m[2],
					User:   normalizeUser(m[3]),
					Action: normalizeAction(m[4]),
					Result: normalizeResult(m[5]),
				}, nil
			},
		},
	}
}
