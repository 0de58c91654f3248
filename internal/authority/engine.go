package authority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"croupier/internal/database"
	"croupier/internal/game"
	"croupier/internal/transport"
)

const (
	requestTimeout = 5 * time.Second
	requestBuffer  = 1000
)

// Config parameterizes the simulated authority's rounds.
type Config struct {
	Mode            game.Mode
	MinBet          int64
	MaxBet          int64
	BettingTime     time.Duration
	TickInterval    time.Duration
	InterRoundPause time.Duration
}

// ServerBet is the authority's view of one accepted wager.
type ServerBet struct {
	BetID       string `json:"bet_id"`
	UserID      string `json:"user_id"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Amount      int64  `json:"amount"`
	CashoutX100 int64  `json:"cashout_x100"`
	Settled     bool   `json:"settled"`
}

// RoundState is the authority's current round. Seed and outcome stay hidden
// until the reveal.
type RoundState struct {
	RoundID     string    `json:"round_id"`
	Mode        game.Mode `json:"mode"`
	Status      string    `json:"status"` // BETTING, LOCKED, RUNNING, SETTLED
	Commitment  string    `json:"commitment"`
	ClientSeed  string    `json:"client_seed"`
	CurrentX100 int64     `json:"current_x100"`
	StartTime   time.Time `json:"start_time"`
	Nonce       int       `json:"nonce"`

	serverSeed string
	pocket     int
	crashX100  int64
	bets       map[string]*ServerBet
}

// BetRequest and friends are channel-fed so all round state mutation happens
// on the round goroutine.
type BetRequest struct {
	UserID       string           `json:"user_id"`
	Type         string           `json:"type"`
	Value        string           `json:"value"`
	Amount       int64            `json:"amount"`
	ResponseChan chan BetResponse `json:"-"`
}

type BetResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	BetID        string `json:"bet_id,omitempty"`
	NewCommitted int64  `json:"new_committed,omitempty"`
}

type SpinRequest struct {
	UserID       string            `json:"user_id"`
	ResponseChan chan SpinResponse `json:"-"`
}

type SpinResponse struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Pocket     int                `json:"pocket"`
	CrashX100  int64              `json:"crash_x100,omitempty"`
	ServerSeed string             `json:"server_seed,omitempty"`
	Payouts    []transport.Payout `json:"payouts,omitempty"`
	NewBalance int64              `json:"new_balance"`
}

type CashoutRequest struct {
	UserID       string               `json:"user_id"`
	BetID        string               `json:"bet_id"`
	ResponseChan chan CashoutResponse `json:"-"`
}

type CashoutResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	MultiplierX100 int64  `json:"multiplier_x100,omitempty"`
	Payout         int64  `json:"payout,omitempty"`
	NewBalance     int64  `json:"new_balance,omitempty"`
}

// Engine runs the authority's round loop: commit a seeded outcome, take bets
// during the window, settle against wallet truth and reveal the seed.
type Engine struct {
	log     *zap.Logger
	cfg     Config
	wallets *WalletStore
	history database.Service // optional
	metrics *Metrics         // optional
	ctx     context.Context

	stateMu sync.RWMutex
	current *RoundState

	subsMu sync.RWMutex
	subs   []func(transport.Event)

	betCh     chan BetRequest
	spinCh    chan SpinRequest
	cashoutCh chan CashoutRequest
	stopCh    chan struct{}
	nonce     int
}

// NewEngine wires the authority. history and metrics may be nil.
func NewEngine(cfg Config, wallets *WalletStore, history database.Service, metrics *Metrics, log *zap.Logger) *Engine {
	return &Engine{
		log:       log,
		cfg:       cfg,
		wallets:   wallets,
		history:   history,
		metrics:   metrics,
		ctx:       context.Background(),
		betCh:     make(chan BetRequest, requestBuffer),
		spinCh:    make(chan SpinRequest, requestBuffer),
		cashoutCh: make(chan CashoutRequest, requestBuffer),
		stopCh:    make(chan struct{}),
	}
}

// Subscribe registers an event sink (the ws hub, a loopback binding).
func (e *Engine) Subscribe(fn func(transport.Event)) {
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
}

func (e *Engine) Start() {
	go e.roundLoop()
}

func (e *Engine) Stop() {
	close(e.stopCh)
}

// CurrentRound returns a sanitized copy of the live round.
func (e *Engine) CurrentRound() *RoundState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.current == nil {
		return nil
	}
	cp := *e.current
	cp.bets = nil
	return &cp
}

// PlaceBet submits a wager and waits for the round goroutine's verdict.
func (e *Engine) PlaceBet(req BetRequest) BetResponse {
	respChan := make(chan BetResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.betCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(requestTimeout):
			return BetResponse{Error: "bet timeout"}
		}
	default:
		return BetResponse{Error: "bet queue full"}
	}
}

// RequestSpin locks the round and settles it; the reply carries the
// requester's payouts and balance.
func (e *Engine) RequestSpin(req SpinRequest) SpinResponse {
	respChan := make(chan SpinResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.spinCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(requestTimeout):
			return SpinResponse{Error: "spin timeout"}
		}
	default:
		return SpinResponse{Error: "spin queue full"}
	}
}

// Cashout settles one crash stake at the current multiplier.
func (e *Engine) Cashout(req CashoutRequest) CashoutResponse {
	respChan := make(chan CashoutResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.cashoutCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(requestTimeout):
			return CashoutResponse{Error: "cashout timeout"}
		}
	default:
		return CashoutResponse{Error: "cashout queue full"}
	}
}

// Balance reads wallet truth.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	return e.wallets.Get(ctx, userID)
}

// SetBalance seeds a wallet. Admin surface.
func (e *Engine) SetBalance(ctx context.Context, userID string, value int64) error {
	return e.wallets.Set(ctx, userID, value)
}

func (e *Engine) roundLoop() {
	for {
		select {
		case <-e.stopCh:
			e.log.Info("round loop stopped")
			return
		default:
			e.runRound()
		}
	}
}

func (e *Engine) runRound() {
	e.nonce++
	serverSeed := GenerateSeed()
	clientSeed := GenerateSeed() // production would aggregate player input
	commitment := HashCommitment(serverSeed)

	round := &RoundState{
		RoundID:     fmt.Sprintf("R%d-%d", time.Now().Unix(), e.nonce),
		Mode:        e.cfg.Mode,
		Status:      "BETTING",
		Commitment:  commitment,
		ClientSeed:  clientSeed,
		CurrentX100: 100,
		StartTime:   time.Now(),
		Nonce:       e.nonce,
		serverSeed:  serverSeed,
		bets:        make(map[string]*ServerBet),
	}
	if e.cfg.Mode == game.ModeRoulette {
		round.pocket = Pocket(serverSeed, clientSeed, e.nonce)
	} else {
		round.crashX100 = CrashX100(serverSeed, clientSeed, e.nonce)
	}

	e.stateMu.Lock()
	e.current = round
	e.stateMu.Unlock()

	e.log.Info("round open",
		zap.String("round_id", round.RoundID),
		zap.String("commitment", commitment[:16]+"..."))

	e.emit(transport.Event{
		Type:        transport.EventGameStarted,
		RoundID:     round.RoundID,
		Phase:       "BETTING",
		Commitment:  commitment,
		RemainingMs: e.cfg.BettingTime.Milliseconds(),
	})

	pendingSpin := e.bettingWindow(round)
	if pendingSpin == nil && len(round.bets) == 0 {
		// Empty window: nothing to lock, the next round opens immediately.
		return
	}

	round.Status = "LOCKED"
	e.emit(transport.Event{
		Type:    transport.EventGameState,
		RoundID: round.RoundID,
		Phase:   "LOCKED",
	})

	if e.cfg.Mode == game.ModeCrash {
		e.runCrash(round)
	} else {
		e.settleRoulette(round, pendingSpin)
	}

	round.Status = "SETTLED"
	select {
	case <-time.After(e.cfg.InterRoundPause):
	case <-e.stopCh:
	}
}

// bettingWindow takes bets until the timer fires or a spin request locks the
// round early. Returns the locking spin request, if any.
func (e *Engine) bettingWindow(round *RoundState) *SpinRequest {
	timer := time.NewTimer(e.cfg.BettingTime)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case req := <-e.betCh:
			e.processBet(round, req)
		case req := <-e.spinCh:
			if e.cfg.Mode == game.ModeCrash {
				req.ResponseChan <- SpinResponse{Error: "crash rounds run on the clock"}
				continue
			}
			if len(round.bets) == 0 {
				req.ResponseChan <- SpinResponse{Error: "no bets placed"}
				continue
			}
			return &req
		case req := <-e.cashoutCh:
			req.ResponseChan <- CashoutResponse{Error: "cannot cashout now"}
		case <-e.stopCh:
			return nil
		}
	}
}

func (e *Engine) processBet(round *RoundState, req BetRequest) {
	resp := BetResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	if req.Amount < e.cfg.MinBet || req.Amount > e.cfg.MaxBet {
		resp.Error = fmt.Sprintf("bet must be between %d and %d", e.cfg.MinBet, e.cfg.MaxBet)
		return
	}
	if e.cfg.Mode == game.ModeRoulette {
		if _, err := game.MultiplierFor(game.BetType(req.Type), req.Value); err != nil {
			resp.Error = err.Error()
			return
		}
	}

	balance, err := e.wallets.Get(e.ctx, req.UserID)
	if err != nil {
		resp.Error = "wallet unavailable"
		return
	}
	committed := e.committedFor(round, req.UserID)
	if balance-committed < req.Amount {
		resp.Error = "insufficient balance"
		return
	}

	bet := &ServerBet{
		BetID:  fmt.Sprintf("BET-%s-%d", req.UserID, time.Now().UnixNano()),
		UserID: req.UserID,
		Type:   req.Type,
		Value:  req.Value,
		Amount: req.Amount,
	}
	round.bets[bet.BetID] = bet

	resp.Success = true
	resp.BetID = bet.BetID
	resp.NewCommitted = committed + req.Amount

	if e.metrics != nil {
		e.metrics.BetsPlaced.Inc()
	}
	e.emit(transport.Event{
		Type:    transport.EventLiveBetPlaced,
		RoundID: round.RoundID,
		UserID:  req.UserID,
		BetID:   bet.BetID,
		Amount:  req.Amount,
	})
	e.log.Info("bet accepted",
		zap.String("user_id", req.UserID),
		zap.String("bet_id", bet.BetID),
		zap.Int64("amount", req.Amount))
}

// settleRoulette applies the committed pocket to every bet and answers the
// locking spin request with its user's lines.
func (e *Engine) settleRoulette(round *RoundState, pendingSpin *SpinRequest) {
	payouts := make([]transport.Payout, 0, len(round.bets))
	perUser := make(map[string]int64)

	for _, bet := range round.bets {
		line := transport.Payout{BetID: bet.BetID}
		mult, _ := game.MultiplierFor(game.BetType(bet.Type), bet.Value)
		if game.Wins(game.BetType(bet.Type), bet.Value, round.pocket) {
			line.Won = true
			line.Payout = bet.Amount * mult
			line.Net = line.Payout - bet.Amount
		} else {
			line.Net = -bet.Amount
		}
		bet.Settled = true
		bet.CashoutX100 = 0
		payouts = append(payouts, line)
		perUser[bet.UserID] += line.Net
	}

	balances := e.applyNets(perUser)
	e.archive(round, payouts)

	e.emit(transport.Event{
		Type:       transport.EventGameResults,
		RoundID:    round.RoundID,
		Pocket:     round.pocket,
		ServerSeed: round.serverSeed,
		Payouts:    payouts,
	})
	e.log.Info("round settled",
		zap.String("round_id", round.RoundID),
		zap.Int("pocket", round.pocket),
		zap.Int("bets", len(payouts)))

	if pendingSpin != nil {
		resp := SpinResponse{
			Success:    true,
			Pocket:     round.pocket,
			ServerSeed: round.serverSeed,
			NewBalance: balances[pendingSpin.UserID],
		}
		for _, line := range payouts {
			if bet := round.bets[line.BetID]; bet != nil && bet.UserID == pendingSpin.UserID {
				resp.Payouts = append(resp.Payouts, line)
			}
		}
		pendingSpin.ResponseChan <- resp
	}
}

// runCrash ticks the multiplier, serves cashouts, and settles the remainder
// as losses when the committed crash point is reached.
func (e *Engine) runCrash(round *RoundState) {
	round.Status = "RUNNING"
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			current := multiplierX100(elapsed)
			if current >= round.crashX100 {
				current = round.crashX100
			}
			e.stateMu.Lock()
			round.CurrentX100 = current
			e.stateMu.Unlock()

			if current >= round.crashX100 {
				e.crash(round)
				return
			}
			e.emit(transport.Event{
				Type:           transport.EventMultiplierUpdate,
				RoundID:        round.RoundID,
				MultiplierX100: current,
			})

		case req := <-e.cashoutCh:
			e.processCashout(round, req)

		case req := <-e.betCh:
			if req.ResponseChan != nil {
				req.ResponseChan <- BetResponse{Error: "betting is closed"}
			}

		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) processCashout(round *RoundState, req CashoutRequest) {
	resp := CashoutResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	bet, ok := round.bets[req.BetID]
	if !ok || bet.UserID != req.UserID {
		resp.Error = "bet not found"
		return
	}
	if bet.Settled {
		resp.Error = "already cashed out"
		return
	}

	current := round.CurrentX100
	payout := bet.Amount * current / 100
	newBalance, err := e.wallets.ApplyDelta(e.ctx, req.UserID, payout-bet.Amount)
	if err != nil {
		resp.Error = "failed to credit balance"
		return
	}
	bet.Settled = true
	bet.CashoutX100 = current

	resp.Success = true
	resp.MultiplierX100 = current
	resp.Payout = payout
	resp.NewBalance = newBalance

	if e.metrics != nil {
		e.metrics.Cashouts.Inc()
	}
	e.emit(transport.Event{
		Type:           transport.EventCashout,
		RoundID:        round.RoundID,
		UserID:         req.UserID,
		BetID:          req.BetID,
		MultiplierX100: current,
		Payout:         payout,
	})
}

func (e *Engine) crash(round *RoundState) {
	payouts := make([]transport.Payout, 0, len(round.bets))
	perUser := make(map[string]int64)

	for _, bet := range round.bets {
		line := transport.Payout{BetID: bet.BetID}
		if bet.Settled && bet.CashoutX100 > 0 {
			line.Won = true
			line.Payout = bet.Amount * bet.CashoutX100 / 100
			line.Net = line.Payout - bet.Amount
		} else {
			line.Net = -bet.Amount
			perUser[bet.UserID] += line.Net
			bet.Settled = true
		}
		payouts = append(payouts, line)
	}

	e.applyNets(perUser)
	e.archive(round, payouts)

	e.emit(transport.Event{
		Type:       transport.EventGameCrashed,
		RoundID:    round.RoundID,
		CrashX100:  round.crashX100,
		ServerSeed: round.serverSeed,
		Payouts:    payouts,
	})
	e.log.Info("round crashed",
		zap.String("round_id", round.RoundID),
		zap.Int64("crash_x100", round.crashX100))
}

func (e *Engine) committedFor(round *RoundState, userID string) int64 {
	var sum int64
	for _, bet := range round.bets {
		if bet.UserID == userID && !bet.Settled {
			sum += bet.Amount
		}
	}
	return sum
}

// applyNets moves settlement deltas into wallet truth and returns the
// resulting balances.
func (e *Engine) applyNets(perUser map[string]int64) map[string]int64 {
	balances := make(map[string]int64, len(perUser))
	for userID, net := range perUser {
		newBalance, err := e.wallets.ApplyDelta(e.ctx, userID, net)
		if err != nil {
			e.log.Error("settlement delta failed",
				zap.String("user_id", userID),
				zap.Int64("net", net),
				zap.Error(err))
			continue
		}
		balances[userID] = newBalance
	}
	// Users whose net was fully cashed out earlier still want a fresh figure.
	return balances
}

func (e *Engine) archive(round *RoundState, payouts []transport.Payout) {
	if e.metrics != nil {
		e.metrics.RoundsSettled.Inc()
	}
	if e.history == nil {
		return
	}
	rec := database.RoundRecord{
		RoundID:    round.RoundID,
		Mode:       string(round.Mode),
		Pocket:     round.pocket,
		CrashX100:  round.crashX100,
		ServerSeed: round.serverSeed,
		Commitment: round.Commitment,
		Nonce:      round.Nonce,
		SettledAt:  time.Now(),
	}
	for _, line := range payouts {
		bet := round.bets[line.BetID]
		if bet == nil {
			continue
		}
		rec.Bets = append(rec.Bets, database.BetRecord{
			BetID:   bet.BetID,
			UserID:  bet.UserID,
			BetType: bet.Type,
			Value:   bet.Value,
			Amount:  bet.Amount,
			Payout:  line.Payout,
			Won:     line.Won,
		})
	}
	ctx, cancel := context.WithTimeout(e.ctx, requestTimeout)
	defer cancel()
	if err := e.history.SaveRound(ctx, rec); err != nil {
		e.log.Error("archive round", zap.Error(err))
	}
}

func (e *Engine) emit(ev transport.Event) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, fn := range e.subs {
		fn(ev)
	}
}

// multiplierX100 grows the crash curve from elapsed seconds, hundredths.
func multiplierX100(elapsed float64) int64 {
	mult := 1.0 + elapsed/1.5 + elapsed*elapsed*0.005
	return int64(mult * 100)
}
