// Package replay applies a JSON-lines action log to a fresh in-memory engine
// and verifies custody conservation after every step.
//
// Each line is one object with an "action" field:
//
//	{"action":"instantiate","funds":"5000","time":"2026-03-01T12:00:00Z"}
//	{"action":"deposit","player":"alice","pot":2,"amount":"300","time":1772366460}
//	{"action":"reallocate","player":"alice","from":2,"to":3}
//	{"action":"settle","raffle_funds":"100","nft":{"collection":"c","token_id":"1"}}
//	{"action":"fund","amount":"600"}
//	{"action":"ack","id":"...","delivered":false}
//
// Times are RFC 3339 strings or unix seconds; a line without one reuses the
// previous line's time. Blank lines and lines starting with '#' are skipped.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/tidwall/gjson"

	domain "github.com/R3E-Network/prudent-pots/internal/app/domain/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/services/pots"
	"github.com/R3E-Network/prudent-pots/internal/app/storage/memory"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

// ErrMalformedLine marks a line that is not a well-formed action.
var ErrMalformedLine = errors.New("malformed action line")

// Step is the outcome of one applied line.
type Step struct {
	Line     int            `json:"line"`
	Action   string         `json:"action"`
	Receipt  domain.Receipt `json:"receipt"`
	Rejected string         `json:"rejected,omitempty"`

	// RolledBack is set when a later acknowledgement reported the NFT missing.
	RolledBack bool `json:"rolled_back,omitempty"`
}

// Summary is the final state after a replay.
type Summary struct {
	Steps     []Step              `json:"steps"`
	Rejected  int                 `json:"rejected"`
	Transfers []domain.Transfer   `json:"transfers"`
	Round     domain.RoundState   `json:"round"`
	Pots      map[string]string   `json:"pots"`
	Custody   domain.Conservation `json:"custody"`
}

// Runner owns the engine a log is applied to.
type Runner struct {
	engine  *pots.Service
	cfg     domain.GameConfig
	admin   string
	autoAck bool
	log     *logger.Logger

	last     time.Time
	steps    []Step
	rejected int
}

// Option customises a Runner.
type Option func(*Runner)

// WithAutoAck controls whether NFT transfers are acknowledged as delivered
// immediately after the action that emitted them.
func WithAutoAck(enabled bool) Option {
	return func(r *Runner) { r.autoAck = enabled }
}

// New builds a runner around a fresh in-memory engine. cfg is the game
// configuration used by "instantiate" lines. Ids are sequential so repeated
// replays of one log produce identical output.
func New(cfg domain.GameConfig, admin string, log *logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.NewDefault("replay")
	}
	seq := 0
	engine := pots.New(memory.NewState(), log,
		pots.WithAuthority(pots.NewStaticAuthority(admin)),
		pots.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("replay-%06d", seq)
		}),
	)
	r := &Runner{engine: engine, cfg: cfg, admin: admin, autoAck: true, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine exposes the engine for inspection.
func (r *Runner) Engine() *pots.Service { return r.engine }

// Run applies every line from in and returns the final summary. Rejected
// actions are recorded and skipped; any other failure stops the replay.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := r.Apply(ctx, line, text); err != nil {
			return Summary{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, fmt.Errorf("read action log: %w", err)
	}
	return r.Summary(ctx)
}

// Apply executes one action line.
func (r *Runner) Apply(ctx context.Context, line int, text string) error {
	if !gjson.Valid(text) {
		return fmt.Errorf("line %d: %w: invalid json", line, ErrMalformedLine)
	}
	doc := gjson.Parse(text)
	action := strings.ToLower(doc.Get("action").String())
	now, err := r.timeOf(doc)
	if err != nil {
		return fmt.Errorf("line %d: %w", line, err)
	}

	receipt, err := r.dispatch(ctx, action, doc, now)
	step := Step{Line: line, Action: action, Receipt: receipt}
	switch {
	case errors.Is(err, ErrMalformedLine):
		return fmt.Errorf("line %d: %w", line, err)
	case err != nil && pots.IsRejection(err):
		step.Rejected = err.Error()
		r.rejected++
		r.log.WithField("line", line).WithField("action", action).WithError(err).Debug("action rejected")
	case err != nil:
		return fmt.Errorf("line %d: %s: %w", line, action, err)
	}
	r.steps = append(r.steps, step)

	if err == nil && r.autoAck {
		for _, nft := range receipt.NftTransfers {
			if _, err := r.engine.AcknowledgeNftTransfer(ctx, nft.ID, true); err != nil {
				return fmt.Errorf("line %d: acknowledge %s: %w", line, nft.ID, err)
			}
		}
	}
	return r.checkConservation(ctx, line)
}

func (r *Runner) dispatch(ctx context.Context, action string, doc gjson.Result, now time.Time) (domain.Receipt, error) {
	switch action {
	case "instantiate":
		funds, err := amountField(doc, "funds")
		if err != nil {
			return domain.Receipt{}, err
		}
		opts, err := settleOptions(doc)
		if err != nil {
			return domain.Receipt{}, err
		}
		return r.engine.Instantiate(ctx, r.caller(doc), r.cfg, funds, opts, now)

	case "deposit":
		pot, err := potField(doc, "pot")
		if err != nil {
			return domain.Receipt{}, err
		}
		amount, err := amountField(doc, "amount")
		if err != nil {
			return domain.Receipt{}, err
		}
		return r.engine.Deposit(ctx, doc.Get("player").String(), pot, amount, now)

	case "reallocate":
		from, err := potField(doc, "from")
		if err != nil {
			return domain.Receipt{}, err
		}
		to, err := potField(doc, "to")
		if err != nil {
			return domain.Receipt{}, err
		}
		return r.engine.Reallocate(ctx, doc.Get("player").String(), from, to, now)

	case "settle":
		opts, err := settleOptions(doc)
		if err != nil {
			return domain.Receipt{}, err
		}
		out, err := r.engine.SettleRound(ctx, r.caller(doc), now, opts)
		return out.Receipt, err

	case "update_next_round":
		opts, err := settleOptions(doc)
		if err != nil {
			return domain.Receipt{}, err
		}
		return r.engine.UpdateNextRound(ctx, r.caller(doc), opts, now)

	case "fund":
		amount, err := amountField(doc, "amount")
		if err != nil {
			return domain.Receipt{}, err
		}
		return domain.Receipt{Action: "fund"}, r.engine.Fund(ctx, r.caller(doc), amount)

	case "ack":
		delivered := true
		if v := doc.Get("delivered"); v.Exists() {
			delivered = v.Bool()
		}
		res, err := r.engine.AcknowledgeNftTransfer(ctx, doc.Get("id").String(), delivered)
		if errors.Is(err, domain.ErrNftNotReceived) {
			// The rollback itself committed; the replay carries on from the restored state.
			r.log.WithField("action_id", res.ActionID).Info("nft not received, action rolled back")
			r.markRolledBack(res.ActionID)
			err = nil
		}
		return domain.Receipt{ActionID: res.ActionID, Action: "ack"}, err

	default:
		return domain.Receipt{}, fmt.Errorf("%w: unknown action %q", ErrMalformedLine, action)
	}
}

// Summary reports the current engine state.
func (r *Runner) Summary(ctx context.Context) (Summary, error) {
	out := Summary{Steps: r.steps, Rejected: r.rejected, Transfers: []domain.Transfer{}}
	for _, step := range r.steps {
		if step.Rejected == "" && !step.RolledBack {
			out.Transfers = append(out.Transfers, step.Receipt.Transfers...)
		}
	}
	round, err := r.engine.Round(ctx)
	if errors.Is(err, domain.ErrNotInstantiated) {
		return out, nil
	}
	if err != nil {
		return Summary{}, err
	}
	p, err := r.engine.Pots(ctx)
	if err != nil {
		return Summary{}, err
	}
	custody, err := r.engine.Custody(ctx)
	if err != nil {
		return Summary{}, err
	}
	out.Round = round
	out.Custody = custody
	out.Pots = make(map[string]string, domain.PotCount)
	for _, id := range domain.AllPotIDs() {
		out.Pots[fmt.Sprint(id)] = p.Get(id).String()
	}
	return out, nil
}

func (r *Runner) markRolledBack(actionID string) {
	for i := range r.steps {
		if r.steps[i].Receipt.ActionID == actionID && r.steps[i].Action != "ack" {
			r.steps[i].RolledBack = true
		}
	}
}

func (r *Runner) checkConservation(ctx context.Context, line int) error {
	if _, err := r.engine.Config(ctx); errors.Is(err, domain.ErrNotInstantiated) {
		return nil
	} else if err != nil {
		return err
	}
	c, err := r.engine.Custody(ctx)
	if err != nil {
		return fmt.Errorf("line %d: read custody: %w", line, err)
	}
	if !c.Balanced() {
		return fmt.Errorf("line %d: %w: custody %s", line, domain.ErrConservationViolated, c.Custody)
	}
	return nil
}

func (r *Runner) caller(doc gjson.Result) string {
	if c := doc.Get("caller"); c.Exists() {
		return c.String()
	}
	return r.admin
}

func (r *Runner) timeOf(doc gjson.Result) (time.Time, error) {
	v := doc.Get("time")
	switch {
	case !v.Exists():
		if r.last.IsZero() {
			return time.Time{}, fmt.Errorf("%w: time is required on the first action", ErrMalformedLine)
		}
		return r.last, nil
	case v.Type == gjson.Number:
		r.last = time.Unix(v.Int(), 0).UTC()
	default:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time: %v", ErrMalformedLine, err)
		}
		r.last = t.UTC()
	}
	return r.last, nil
}

func amountField(doc gjson.Result, field string) (sdkmath.Int, error) {
	v := doc.Get(field)
	if !v.Exists() {
		return sdkmath.ZeroInt(), nil
	}
	amount, err := domain.ParseAmount(v.String())
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s: %v", ErrMalformedLine, field, err)
	}
	return amount, nil
}

func potField(doc gjson.Result, field string) (domain.PotID, error) {
	v := doc.Get(field)
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: %s must be a number", ErrMalformedLine, field)
	}
	// Out-of-range ids are left to the engine so they surface as rejections.
	id := v.Uint()
	if id > domain.PotCount {
		id = 0
	}
	return domain.PotID(id), nil
}

func settleOptions(doc gjson.Result) (pots.SettleOptions, error) {
	var opts pots.SettleOptions
	if nft := doc.Get("nft"); nft.Exists() {
		raffleNft, err := domain.NewRaffleNft(nft.Get("collection").String(), nft.Get("token_id").String())
		if err != nil {
			return opts, err
		}
		opts.RaffleNft = raffleNft
	}
	if doc.Get("raffle_funds").Exists() {
		funds, err := amountField(doc, "raffle_funds")
		if err != nil {
			return opts, err
		}
		opts.RaffleFunds = funds
	}
	if v := doc.Get("next_round_start"); v.Exists() {
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return opts, fmt.Errorf("%w: next_round_start: %v", ErrMalformedLine, err)
		}
		t = t.UTC()
		opts.NextRoundStart = &t
	}
	return opts, nil
}
