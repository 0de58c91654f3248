package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"croupier/internal/transport"
)

const (
	commandTimeout   = 5 * time.Second
	spinRetrySpacing = 2 * time.Second
	historyLimit     = 50
)

// Config parameterizes the round controller. All knobs come from
// configuration, never literals.
type Config struct {
	Mode        Mode
	MinBet      int64
	MaxBet      int64
	CapFraction float64

	BettingDuration time.Duration
	TickInterval    time.Duration
	InterRoundPause time.Duration

	ConfirmPolicy  ConfirmPolicy
	ConfirmDelay   time.Duration
	ConfirmTimeout time.Duration

	ResyncInterval time.Duration
}

// Snapshot is a copy of the observable core state for rendering.
type Snapshot struct {
	Round          *Round `json:"round,omitempty"`
	Wallet         Wallet `json:"wallet"`
	RemainingMs    int64  `json:"remaining_ms"`
	MultiplierX100 int64  `json:"multiplier_x100"`
	Spinning       bool   `json:"spinning"`
	AutoActive     bool   `json:"auto_active"`
}

// Controller owns the round lifecycle and orchestrates ledger, reconciler and
// auto-bet over a single event loop: every command, network completion and
// timer tick runs to completion before the next, so round, bet and wallet
// state never interleave.
type Controller struct {
	log     *zap.Logger
	cfg     Config
	channel transport.Channel

	wallet *Wallet
	ledger *Ledger
	recon  *Reconciler
	auto   *AutoBet
	clock  *Clock
	now    func() time.Time

	round        *Round
	roundSeq     int
	history      []*Round
	isSpinning   bool
	lastSpinTry  time.Time
	lastRoundEnd time.Time
	multX100     int64

	// settlement lines from early cashouts, folded into the round's total
	roundNet     int64
	roundResults []BetOutcome
	autoInRound  bool

	cmds   chan func()
	events chan any
	stop   chan struct{}
}

// NewController wires the core. Every collaborator is constructed here and
// passed explicitly; nothing is discovered through ambient globals.
func NewController(cfg Config, ch transport.Channel, log *zap.Logger) *Controller {
	return newController(cfg, ch, log, time.Now)
}

func newController(cfg Config, ch transport.Channel, log *zap.Logger, now func() time.Time) *Controller {
	wallet := &Wallet{}
	c := &Controller{
		log:     log,
		cfg:     cfg,
		channel: ch,
		wallet:  wallet,
		ledger:  NewLedger(wallet, cfg.MinBet, cfg.MaxBet, cfg.Mode == ModeCrash, log),
		recon:   NewReconciler(wallet, cfg.ResyncInterval, log, now),
		auto:    NewAutoBet(cfg.MinBet, cfg.MaxBet, cfg.CapFraction, log),
		clock:   NewClock(now),
		now:     now,
		cmds:    make(chan func(), 256),
		events:  make(chan any, 100),
		stop:    make(chan struct{}),
	}
	c.recon.SetResync(c.queryBalanceAsync)
	c.recon.OnChange(func(ev BalanceChanged) { c.emit(ev) })
	return c
}

// Start runs the event loop and requests the authoritative balance.
func (c *Controller) Start(ctx context.Context) {
	go c.loop(ctx)
	c.post(func() { c.recon.Resync(true) })
}

// Stop terminates the event loop.
func (c *Controller) Stop() {
	close(c.stop)
}

// Events streams Notice, BalanceChanged, PhaseChanged, RoundSettled and
// SessionSummary values for the outer UI layers.
func (c *Controller) Events() <-chan any {
	return c.events
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			c.log.Info("round loop stopped")
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-c.channel.Events():
			if ok {
				c.handleEvent(ev)
			}
		case <-ticker.C:
			c.tick()
		}
	}
}

// PlaceBet validates and stages a wager, then drives it through the
// configured confirmation policy. The returned bet is a snapshot.
func (c *Controller) PlaceBet(t BetType, value string, amount int64) (Bet, error) {
	var (
		bet Bet
		err error
	)
	if doErr := c.do(func() {
		b, stageErr := c.placeBet(t, value, amount, c.cfg.ConfirmPolicy)
		if stageErr != nil {
			err = stageErr
			return
		}
		bet = *b
	}); doErr != nil {
		return Bet{}, doErr
	}
	return bet, err
}

// ConfirmBet commits a staged bet under the explicit confirmation policy.
func (c *Controller) ConfirmBet(betID string) error {
	var err error
	if doErr := c.do(func() {
		if b, ok := c.ledger.Get(betID); !ok || b.Status != BetPending {
			err = ErrBetNotPending
			return
		}
		c.sendConfirm(betID)
	}); doErr != nil {
		return doErr
	}
	return err
}

// CancelBet discards a pending bet before its confirmation lands.
func (c *Controller) CancelBet(betID string) error {
	var err error
	if doErr := c.do(func() {
		err = c.ledger.Cancel(betID, false)
	}); doErr != nil {
		return doErr
	}
	return err
}

// RequestSpin locks the betting window and asks for the outcome. A duplicate
// request while one is in flight is rejected, not silently dropped.
func (c *Controller) RequestSpin() error {
	var err error
	if doErr := c.do(func() {
		err = c.requestSpinCmd()
	}); doErr != nil {
		return doErr
	}
	return err
}

// CashOut settles one crash stake at the current multiplier.
func (c *Controller) CashOut(betID string) error {
	var err error
	if doErr := c.do(func() {
		err = c.cashOutCmd(betID)
	}); doErr != nil {
		return doErr
	}
	return err
}

// StartAutoBet opens an automated session. If a betting window is open the
// first stake goes down immediately, otherwise on the next round.
func (c *Controller) StartAutoBet(p SessionParams) error {
	var err error
	if doErr := c.do(func() {
		if err = c.auto.Start(p); err != nil {
			return
		}
		if c.round != nil && c.round.Phase == PhaseBetting && !c.autoInRound {
			c.placeAutoBet()
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// StopAutoBet halts the session and returns its summary.
func (c *Controller) StopAutoBet() *SessionSummary {
	var sum *SessionSummary
	c.do(func() {
		sum = c.auto.Stop()
	})
	return sum
}

// Snapshot copies the observable state.
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	c.do(func() {
		snap = Snapshot{
			Wallet:         *c.wallet,
			RemainingMs:    c.clock.Remaining().Milliseconds(),
			MultiplierX100: c.multX100,
			Spinning:       c.isSpinning,
			AutoActive:     c.auto.Active(),
		}
		if c.round != nil {
			r := *c.round
			snap.Round = &r
		}
	})
	return snap
}

// do runs fn on the event loop and waits for it.
func (c *Controller) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-time.After(commandTimeout):
		return errors.New("command queue full")
	}
	select {
	case <-done:
		return nil
	case <-time.After(commandTimeout):
		return errors.New("command timeout")
	}
}

// post enqueues fn without waiting; used by network completions.
func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- fn:
	default:
		go func() { c.cmds <- fn }()
	}
}

// --- event loop internals; everything below runs on the loop goroutine ---

func (c *Controller) tick() {
	if c.round == nil {
		if c.lastRoundEnd.IsZero() || c.now().Sub(c.lastRoundEnd) >= c.cfg.InterRoundPause {
			c.startRound()
		}
		return
	}

	switch c.round.Phase {
	case PhaseBetting:
		if !c.clock.Expired() {
			return
		}
		if c.ledger.ConfirmedCount() > 0 {
			c.lockRound()
		} else {
			// Nothing at stake: the window simply restarts.
			c.clock.Reset(c.cfg.BettingDuration)
			c.round.StartedAt = c.clock.StartedAt()
			c.emitPhase()
		}
	case PhaseLocked:
		if c.cfg.Mode == ModeRoulette {
			c.maybeRequestOutcome()
		}
		// Crash rounds wait for the pushed game_crashed event.
	}
}

func (c *Controller) startRound() {
	c.roundSeq++
	c.round = &Round{
		ID:        fmt.Sprintf("R%d-%d", c.now().Unix(), c.roundSeq),
		Mode:      c.cfg.Mode,
		Phase:     PhaseBetting,
		StartedAt: c.now(),
		Duration:  c.cfg.BettingDuration,
	}
	c.ledger.Reset()
	c.clock.Reset(c.cfg.BettingDuration)
	c.multX100 = 100
	c.roundNet = 0
	c.roundResults = nil
	c.autoInRound = false

	c.log.Info("round started",
		zap.String("round_id", c.round.ID),
		zap.String("mode", string(c.cfg.Mode)))
	c.emitPhase()

	if c.auto.Active() {
		c.placeAutoBet()
	}
}

func (c *Controller) lockRound() {
	c.round.Phase = PhaseLocked
	c.emitPhase()
	if c.cfg.Mode == ModeRoulette {
		c.maybeRequestOutcome()
	}
}

func (c *Controller) requestSpinCmd() error {
	if c.isSpinning {
		return ErrSpinInFlight
	}
	if c.round == nil {
		return ErrBettingClosed
	}
	switch c.round.Phase {
	case PhaseBetting:
		if c.ledger.ConfirmedCount() == 0 {
			return ErrNoConfirmedBets
		}
		c.lockRound()
		return nil
	case PhaseLocked:
		c.maybeRequestOutcome()
		return nil
	}
	return ErrBettingClosed
}

// maybeRequestOutcome sends the outcome request, guarded so only one is ever
// in flight and failures are retried with spacing rather than every tick.
func (c *Controller) maybeRequestOutcome() {
	if c.isSpinning {
		return
	}
	if !c.lastSpinTry.IsZero() && c.now().Sub(c.lastSpinTry) < spinRetrySpacing {
		return
	}
	c.isSpinning = true
	c.lastSpinTry = c.now()
	roundID := c.round.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConfirmTimeout)
		defer cancel()
		res, err := c.channel.RequestSpin(ctx)
		c.post(func() { c.completeSpin(roundID, res, err) })
	}()
}

func (c *Controller) completeSpin(roundID string, res transport.SpinResult, err error) {
	// The guard clears on success and failure alike.
	c.isSpinning = false

	if c.round == nil || c.round.ID != roundID {
		return
	}
	if err != nil {
		c.emitNotice(NoticeTransport, "outcome request failed, retrying")
		if sum := c.auto.RecordTransportFailure(); sum != nil {
			c.emit(*sum)
		}
		return
	}
	if !res.Success {
		c.emitNotice(NoticeAuthority, res.Error)
		c.recon.Resync(true)
		return
	}

	out := &Outcome{Mode: c.cfg.Mode, Pocket: res.Pocket, CrashX100: res.CrashX100, ServerSeed: res.ServerSeed}
	c.applyOutcome(out, res.NewBalance, true)
}

// applyOutcome settles the current round. Settlement is atomic from the
// loop's perspective and idempotent: a duplicate outcome event is a no-op.
func (c *Controller) applyOutcome(out *Outcome, newBalance int64, haveBalance bool) {
	if c.round == nil || c.round.Phase == PhaseSettling {
		return
	}
	c.round.Phase = PhaseSettling
	c.emitPhase()

	results, net, applied := c.ledger.Settle(out)
	if !applied {
		return
	}

	totalNet := net + c.roundNet
	if haveBalance && newBalance > 0 {
		c.recon.SetBalance(newBalance, SourceSpinResult)
	} else {
		c.recon.SetBalance(c.recon.Balance()+net, SourceSpinResult)
	}

	c.round.Outcome = out
	settled := RoundSettled{
		RoundID: c.round.ID,
		Outcome: *out,
		Bets:    append(c.roundResults, results...),
		Net:     totalNet,
	}
	c.emit(settled)
	c.log.Info("round settled",
		zap.String("round_id", c.round.ID),
		zap.Int("bets", len(settled.Bets)),
		zap.Int64("net", totalNet))

	if c.auto.Active() && c.autoInRound {
		if sum := c.auto.Observe(totalNet, c.recon.Available()); sum != nil {
			c.emit(*sum)
		}
	}

	c.history = append(c.history, c.round)
	if len(c.history) > historyLimit {
		c.history = c.history[1:]
	}
	c.lastRoundEnd = c.now()
	c.round = nil
}

func (c *Controller) placeBet(t BetType, value string, amount int64, policy ConfirmPolicy) (*Bet, error) {
	phase := PhaseIdle
	if c.round != nil {
		phase = c.round.Phase
	}
	bet, err := c.ledger.Stage(t, value, amount, phase)
	if err != nil {
		c.emitNotice(NoticeValidation, err.Error())
		return nil, err
	}

	switch policy {
	case ConfirmImmediate:
		c.sendConfirm(bet.ID)
	case ConfirmTimed:
		id, tok := bet.ID, bet.token
		time.AfterFunc(c.cfg.ConfirmDelay, func() {
			c.post(func() {
				if b, ok := c.ledger.Get(id); ok && b.Status == BetPending && b.token == tok {
					c.sendConfirm(id)
				}
			})
		})
	case ConfirmExplicit:
		// Waits for ConfirmBet.
	}
	return bet, nil
}

func (c *Controller) sendConfirm(betID string) {
	tok, err := c.ledger.BeginConfirm(betID)
	if err != nil {
		return
	}
	bet, _ := c.ledger.Get(betID)
	req := transport.PlaceBetRequest{
		Type:   string(bet.Type),
		Value:  bet.Value,
		Amount: bet.Amount,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConfirmTimeout)
		defer cancel()
		res, callErr := c.channel.PlaceBet(ctx, req)
		c.post(func() { c.completeConfirm(betID, tok, res, callErr) })
	}()
}

func (c *Controller) completeConfirm(betID string, tok uint64, res transport.PlaceBetResult, err error) {
	if err != nil {
		// No definitive verdict arrived inside the timeout policy.
		if c.ledger.CompleteConfirm(betID, tok, false, "") {
			c.emitNotice(NoticeTransport, "bet confirmation failed")
		}
		if sum := c.auto.RecordTransportFailure(); sum != nil {
			c.emit(*sum)
		}
		return
	}
	if !res.Success {
		if c.ledger.CompleteConfirm(betID, tok, false, "") {
			c.emitNotice(NoticeAuthority, res.Error)
		}
		c.recon.Resync(true)
		return
	}
	if c.ledger.CompleteConfirm(betID, tok, true, res.BetID) {
		c.emitNotice(NoticeInfo, "bet confirmed")
	}
}

func (c *Controller) cashOutCmd(betID string) error {
	if c.cfg.Mode != ModeCrash {
		return ErrBetNotCancellable
	}
	if c.round == nil || c.round.Phase != PhaseLocked {
		return ErrBettingClosed
	}
	bet, ok := c.ledger.Get(betID)
	if !ok {
		return ErrBetNotFound
	}
	if bet.Status != BetConfirmed {
		return ErrBetNotCancellable
	}
	roundID := c.round.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConfirmTimeout)
		defer cancel()
		res, err := c.channel.Cashout(ctx, betID)
		c.post(func() { c.completeCashout(roundID, betID, res, err) })
	}()
	return nil
}

func (c *Controller) completeCashout(roundID, betID string, res transport.CashoutResult, err error) {
	if c.round == nil || c.round.ID != roundID {
		return
	}
	if err != nil {
		c.emitNotice(NoticeTransport, "cashout failed")
		if sum := c.auto.RecordTransportFailure(); sum != nil {
			c.emit(*sum)
		}
		return
	}
	if !res.Success {
		c.emitNotice(NoticeAuthority, res.Error)
		c.recon.Resync(true)
		return
	}
	line, lerr := c.ledger.CashoutSettle(betID, res.MultiplierX100)
	if lerr != nil {
		return
	}
	c.roundNet += line.Net
	c.roundResults = append(c.roundResults, line)
	if res.NewBalance > 0 {
		c.recon.SetBalance(res.NewBalance, SourceSpinResult)
	}
	c.emitNotice(NoticeInfo, fmt.Sprintf("cashed out at %.2fx", float64(res.MultiplierX100)/100))
}

func (c *Controller) placeAutoBet() {
	stake, ok := c.auto.NextBet(c.recon.Available())
	if !ok {
		if sum := c.auto.Halt(StopStrategyExhausted); sum != nil {
			c.emit(*sum)
		}
		return
	}
	p := c.auto.Params()
	// Automated stakes confirm immediately; the confirmation window exists
	// for humans changing their mind.
	if _, err := c.placeBet(p.BetType, p.BetValue, stake, ConfirmImmediate); err != nil {
		return
	}
	c.autoInRound = true
}

func (c *Controller) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventBalance:
		c.recon.SetBalance(ev.Balance, SourceServerSync)
	case transport.EventReconnected:
		// State may have moved while disconnected; never assume otherwise.
		c.recon.Resync(true)
		c.emitNotice(NoticeTransport, "reconnected")
	case transport.EventMultiplierUpdate:
		c.multX100 = ev.MultiplierX100
	case transport.EventGameCrashed:
		out := &Outcome{Mode: ModeCrash, CrashX100: ev.CrashX100, ServerSeed: ev.ServerSeed}
		c.applyOutcome(out, ev.Balance, ev.Balance > 0)
	case transport.EventGameResults:
		out := &Outcome{Mode: ModeRoulette, Pocket: ev.Pocket, ServerSeed: ev.ServerSeed}
		c.applyOutcome(out, ev.Balance, ev.Balance > 0)
	case transport.EventBetError:
		c.emitNotice(NoticeAuthority, ev.Error)
	case transport.EventLiveBetPlaced:
		c.emitNotice(NoticeInfo, fmt.Sprintf("%s wagered %d", ev.UserID, ev.Amount))
	case transport.EventCashout:
		c.emitNotice(NoticeInfo, fmt.Sprintf("%s cashed out %d", ev.UserID, ev.Payout))
	}
}

func (c *Controller) queryBalanceAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := c.channel.QueryBalance(ctx)
		if err != nil {
			c.post(func() { c.emitNotice(NoticeTransport, "balance query failed") })
			return
		}
		c.post(func() { c.recon.SetBalance(res.Balance, SourceAuthority) })
	}()
}

func (c *Controller) emitPhase() {
	c.emit(PhaseChanged{
		RoundID:     c.round.ID,
		Phase:       c.round.Phase,
		RemainingMs: c.clock.Remaining().Milliseconds(),
	})
}

func (c *Controller) emitNotice(kind NoticeKind, msg string) {
	c.emit(Notice{Kind: kind, Message: msg})
}

func (c *Controller) emit(ev any) {
	select {
	case c.events <- ev:
	default:
		// Slow consumers shed notifications, never block the loop.
	}
}
