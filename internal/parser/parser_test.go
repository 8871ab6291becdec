package parser

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authwatch/internal/model"
)

func TestNormalizeAuthFormat(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("2025-09-07 12:34:56, IP: 192.168.1.1, user: admin, action: login, result: success")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", ev.IP)
	assert.Equal(t, "admin", ev.User)
	assert.Equal(t, "login", ev.Action)
	assert.Equal(t, model.ResultSuccess, ev.Result)
	assert.Equal(t, time.Date(2025, 9, 7, 12, 34, 56, 0, time.UTC), ev.Time)
}

func TestNormalizeApacheCombined(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize(`127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache.gif HTTP/1.0" 200 2326`)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ev.IP)
	assert.Equal(t, "frank", ev.User)
	assert.Equal(t, "get", ev.Action)
	assert.Equal(t, model.ResultSuccess, ev.Result)
	assert.Equal(t, time.Date(2000, 10, 10, 20, 55, 36, 0, time.UTC), ev.Time)
}

func TestNormalizeNginxPostLogin(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize(`192.168.0.1 - - [12/Mar/2021:19:14:36 +0000] "POST /login HTTP/1.1" 403 564 "-" "Mozilla/5.0"`)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1", ev.IP)
	assert.Equal(t, model.UnknownUser, ev.User, "placeholder user collapses to the sentinel")
	assert.Equal(t, "login", ev.Action, "POST collapses to login")
	assert.Equal(t, model.ResultFail, ev.Result, "403 collapses to fail")
}

func TestNormalizeSSHD(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("Jan 10 10:32:15 server sshd[12345]: Failed password for root from 192.168.1.100 port 22 ssh2")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", ev.IP)
	assert.Equal(t, "root", ev.User)
	assert.Equal(t, "login", ev.Action, "ssh_login collapses to login")
	assert.Equal(t, model.ResultFail, ev.Result)
	assert.Equal(t, time.Now().Year(), ev.Time.Year(), "year-less syslog timestamp assumes current year")
}

func TestNormalizeSSHDInvalidUser(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("Feb  3 04:05:06 host sshd[99]: Failed password for invalid user oracle from 10.0.0.9 port 4242 ssh2")
	require.NoError(t, err)
	assert.Equal(t, "oracle", ev.User)
	assert.Equal(t, "10.0.0.9", ev.IP)
}

func TestNormalizeWindowsCSV(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("2025-01-02 03:04:05,36.125.146.54,bob,login,fail")
	require.NoError(t, err)
	assert.Equal(t, "36.125.146.54", ev.IP)
	assert.Equal(t, "bob", ev.User)
	assert.Equal(t, "login", ev.Action)
	assert.Equal(t, model.ResultFail, ev.Result)
}

func TestNormalizeAcceptedCollapsesToSuccess(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("Mar 15 08:00:01 bastion sshd[7]: Accepted password for deploy from 203.0.113.5 port 51412 ssh2")
	require.NoError(t, err)
	assert.Equal(t, model.ResultSuccess, ev.Result)
}

func TestNormalizeUnknownResult(t *testing.T) {
	r := NewRegistry()
	ev, err := r.Normalize("2025-09-07 12:34:56, IP: 10.0.0.1, user: eve, action: login, result: weird")
	require.NoError(t, err)
	assert.Equal(t, model.ResultUnknown, ev.Result)
}

func TestNormalizeUnparseable(t *testing.T) {
	r := NewRegistry()
	_, err := r.Normalize("this is not a log line at all")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseable))
}

func TestUnparseableDiagnosticMasksUser(t *testing.T) {
	r := NewRegistry()
	// Timestamp is malformed so the auth format's extractor rejects it,
	// but the user token is present and must not leak.
	_, err := r.Normalize("2025-13-99 99:99:99, IP: 1.2.3.4, user: topsecret, action: login, result: fail")
	require.Error(t, err)
	var unparseable *UnparseableError
	require.True(t, errors.As(err, &unparseable))
	assert.NotContains(t, unparseable.Line, "topsecret")
	assert.Contains(t, unparseable.Line, "[redacted]")
}

func TestMaskUser(t *testing.T) {
	cases := map[string]string{
		"user: alice, action: login":                      "user: [redacted], action: login",
		"Failed password for bob from 1.2.3.4":            "Failed password for [redacted] from 1.2.3.4",
		"Failed password for invalid user x from 1.2.3.4": "Failed password for invalid user [redacted] from 1.2.3.4",
		"2025-01-02 03:04:05,1.2.3.4,carol,login,fail":    "2025-01-02 03:04:05,1.2.3.4,[redacted],login,fail",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskUser(in))
	}
}

func TestExtractorFailureContinuesScan(t *testing.T) {
	r := NewRegistry()
	broken := Format{
		Name: "broken",
		re:   reAuth,
		extract: func(m []string) (model.Event, error) {
			return model.Event{}, fmt.Errorf("always fails")
		},
	}
	// Prepend the failing format; the built-in auth format must still win.
	r.formats = append([]Format{broken}, r.formats...)
	ev, err := r.Normalize("2025-09-07 12:34:56, IP: 192.168.1.1, user: admin, action: login, result: success")
	require.NoError(t, err)
	assert.Equal(t, "admin", ev.User)
}
