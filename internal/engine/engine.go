// Package engine is the stateful detection core. It consumes raw lines
// from the ingestion adapters, normalizes them and evaluates five rules
// per login event: country allow-list block, already-blocked
// short-circuit, successful-login geo anomaly, spraying/distributed
// attack windows, and per-IP brute force.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"authwatch/internal/config"
	"authwatch/internal/geo"
	"authwatch/internal/logging"
	"authwatch/internal/model"
	"authwatch/internal/parser"
	"authwatch/internal/storage"
)

type Engine struct {
	notifier *logging.Notifier
	store    storage.Store
	resolver geo.Resolver
	registry *parser.Registry

	allowed     map[string]struct{}
	bfLimit     int
	bfWindow    time.Duration
	attackWin   time.Duration
	sprayLimit  int
	distLimit   int

	// All mutable detection state below is guarded by mu. One canonical
	// event is processed end to end before the next may mutate state:
	// prune-then-count is a read-modify-write sequence.
	mu          sync.Mutex
	bruteForce  map[string]*window // per source IP, fail instants
	spray       map[string]*window // per source IP, keyed by user
	distributed map[string]*window // per target user, keyed by IP

	blocked       map[string]struct{}
	blockNotified map[string]struct{} // one "already blocked" info per IP per run
	alerted       map[string]struct{} // brute-force alerts raised this run
	alertNotified map[string]struct{} // one "already alerted" info per IP per run
}

func New(cfg *config.Config, notifier *logging.Notifier, store storage.Store, resolver geo.Resolver) *Engine {
	allowed := make(map[string]struct{}, len(cfg.AllowedCountries))
	for _, c := range cfg.AllowedCountries {
		allowed[geo.NormalizeCountry(c)] = struct{}{}
	}
	return &Engine{
		notifier:      notifier,
		store:         store,
		resolver:      resolver,
		registry:      parser.NewRegistry(),
		allowed:       allowed,
		bfLimit:       cfg.BruteForce.Limit,
		bfWindow:      cfg.BruteForce.Window,
		attackWin:     cfg.Attack.Window,
		sprayLimit:    cfg.Attack.SprayUserThreshold,
		distLimit:     cfg.Attack.DistributedIPThreshold,
		bruteForce:    make(map[string]*window),
		spray:         make(map[string]*window),
		distributed:   make(map[string]*window),
		blocked:       make(map[string]struct{}),
		blockNotified: make(map[string]struct{}),
		alerted:       make(map[string]struct{}),
		alertNotified: make(map[string]struct{}),
	}
}

// Rehydrate loads the durable block list into the in-memory mirror so
// blocks survive restarts.
func (e *Engine) Rehydrate(ctx context.Context) error {
	blocked, err := e.store.AllBlockedIPs(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.blocked = blocked
	e.mu.Unlock()
	e.notifier.Info().Int("blocked_ips", len(blocked)).Msg("engine state rehydrated")
	return nil
}

// ProcessLine is the single entry point the ingestion adapters feed.
// A normalization failure never aborts the stream; the offending line is
// logged with its user field masked and skipped.
func (e *Engine) ProcessLine(ctx context.Context, line string) {
	ev, err := e.registry.Normalize(line)
	if err != nil {
		var unparseable *parser.UnparseableError
		if errors.As(err, &unparseable) && unparseable.Line == "" {
			return
		}
		e.notifier.Error().Err(err).Msg("skipping unparseable line")
		return
	}
	if ev.Action != "login" {
		return
	}

	// Resolve before taking the lock: a slow lookup delays only the
	// calling worker, never the siblings.
	country := e.resolver.Resolve(ctx, ev.IP)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.process(ctx, ev, country)
}

func (e *Engine) process(ctx context.Context, ev model.Event, country string) {
	if err := e.store.RecordEvent(ctx, ev, country); err != nil {
		e.notifier.Error().Err(err).Str("ip", ev.IP).Msg("recording login event failed")
	}

	// Rule 1: country allow-list block. Terminal for the event.
	if _, ok := e.allowed[country]; !ok {
		if _, isBlocked := e.blocked[ev.IP]; !isBlocked {
			e.blocked[ev.IP] = struct{}{}
			if err := e.store.RecordBlock(ctx, ev.IP, ev.User, country, ev.Time); err != nil {
				e.notifier.Error().Err(err).Str("ip", ev.IP).Msg("recording block failed")
			}
			e.raiseAlert(ctx, model.Alert{
				IP: ev.IP, User: ev.User, Country: country,
				Time: ev.Time, Reason: model.ReasonCountryBlock,
			})
			e.notifier.Warn().
				Str("ip", ev.IP).Str("country", country).
				Msg("ip blocked due to country restriction")
		} else if _, notified := e.blockNotified[ev.IP]; !notified {
			e.blockNotified[ev.IP] = struct{}{}
			e.notifier.Info().
				Str("ip", ev.IP).Str("country", country).
				Msg("ip already blocked")
		}
		return
	}

	// Rule 2: already-blocked short-circuit.
	if _, isBlocked := e.blocked[ev.IP]; isBlocked {
		return
	}

	switch ev.Result {
	case model.ResultSuccess:
		e.onSuccess(ctx, ev, country)
	case model.ResultFail:
		e.onFailure(ctx, ev, country)
	}
}

// Rule 3: successful login from a country never seen for this user.
func (e *Engine) onSuccess(ctx context.Context, ev model.Event, country string) {
	profile, err := e.store.GetOrCreateUserProfile(ctx, ev.User)
	if err != nil {
		e.notifier.Error().Err(err).Str("user", ev.User).Msg("loading user profile failed")
		return
	}

	if profile.SuccessfulLogins > 0 && !profile.KnowsCountry(country) {
		e.raiseAlert(ctx, model.Alert{
			IP: ev.IP, User: ev.User, Country: country,
			Time: ev.Time, Reason: model.ReasonSuspiciousGeo,
		})
		e.notifier.Warn().
			Str("user", ev.User).Str("ip", ev.IP).
			Str("country", country).
			Strs("known_countries", profile.KnownCountries).
			Msg("suspicious login from new country")
	}

	// The country set converges to everything ever seen for this user,
	// whether or not the anomaly fired.
	if err := e.store.AddUserProfileCountry(ctx, ev.User, country); err != nil {
		e.notifier.Error().Err(err).Str("user", ev.User).Msg("updating profile countries failed")
	}
	if err := e.store.BumpLoginCounters(ctx, ev.User, true); err != nil {
		e.notifier.Error().Err(err).Str("user", ev.User).Msg("updating login counters failed")
	}
}

// Rules 4 and 5: rolling-window attack patterns over failed logins.
func (e *Engine) onFailure(ctx context.Context, ev model.Event, country string) {
	// Profiles exist only for users with a successful login on record; the
	// counter update is a no-op for anyone else. A spraying attack must not
	// mint one profile row per attempted username.
	if err := e.store.BumpLoginCounters(ctx, ev.User, false); err != nil {
		e.notifier.Error().Err(err).Str("user", ev.User).Msg("updating login counters failed")
	}

	// Password spraying: one IP touching many distinct users. Strictly
	// greater than the threshold.
	sw := e.spray[ev.IP]
	if sw == nil {
		sw = newWindow(e.attackWin)
		e.spray[ev.IP] = sw
	}
	sw.Add(ev.Time, ev.User)
	if sw.DistinctKeys() > e.sprayLimit {
		e.raiseAlert(ctx, model.Alert{
			IP: ev.IP, Country: country, Time: ev.Time,
			Reason: model.ReasonPasswordSpraying,
		})
		e.notifier.Warn().
			Str("ip", ev.IP).Int("distinct_users", sw.DistinctKeys()).
			Msg("password spraying detected")
		sw.Reset()
	}

	// Distributed attack: one user targeted from many distinct IPs.
	// Fires at the threshold.
	dw := e.distributed[ev.User]
	if dw == nil {
		dw = newWindow(e.attackWin)
		e.distributed[ev.User] = dw
	}
	dw.Add(ev.Time, ev.IP)
	if dw.DistinctKeys() >= e.distLimit {
		e.raiseAlert(ctx, model.Alert{
			User: ev.User, Country: country, Time: ev.Time,
			Reason: model.ReasonDistributedAttack,
		})
		e.notifier.Warn().
			Str("user", ev.User).Int("distinct_ips", dw.DistinctKeys()).
			Msg("distributed credential attack detected")
		dw.Reset()
	}

	e.checkBruteForce(ctx, ev, country)
}

// Rule 5: per-IP raw fail count, independent of the distinctness windows.
func (e *Engine) checkBruteForce(ctx context.Context, ev model.Event, country string) {
	bw := e.bruteForce[ev.IP]
	if bw == nil {
		bw = newWindow(e.bfWindow)
		e.bruteForce[ev.IP] = bw
	}
	bw.Add(ev.Time, "")
	if bw.Len() < e.bfLimit {
		return
	}
	if _, done := e.alerted[ev.IP]; done {
		return
	}

	alertedBefore, err := e.store.IsIPAlerted(ctx, ev.IP)
	if err != nil {
		e.notifier.Error().Err(err).Str("ip", ev.IP).Msg("alert lookup failed")
		return
	}
	if alertedBefore {
		if _, notified := e.alertNotified[ev.IP]; !notified {
			e.alertNotified[ev.IP] = struct{}{}
			e.notifier.Info().
				Str("ip", ev.IP).Str("country", country).
				Msg("failed logins over limit, ip already on alert list")
		}
		e.alerted[ev.IP] = struct{}{}
		return
	}

	e.raiseAlert(ctx, model.Alert{
		IP: ev.IP, Country: country, Time: ev.Time,
		Reason: model.ReasonBruteForce,
	})
	e.notifier.Warn().
		Str("ip", ev.IP).Str("country", country).Int("fails", bw.Len()).
		Msg("failed login attempts exceed limit")
	e.alerted[ev.IP] = struct{}{}
	bw.Reset()
}

func (e *Engine) raiseAlert(ctx context.Context, alert model.Alert) {
	if err := e.store.RecordAlert(ctx, alert); err != nil {
		e.notifier.Error().Err(err).
			Str("ip", alert.IP).Str("user", alert.User).
			Str("reason", string(alert.Reason)).
			Msg("recording alert failed")
	}
}
