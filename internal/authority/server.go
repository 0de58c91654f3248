package authority

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"croupier/internal/cache"
	"croupier/internal/database"
)

// Server is the authority's public surface: REST for one-shot commands,
// websocket for the event stream.
type Server struct {
	*fiber.App

	log     *zap.Logger
	engine  *Engine
	hub     *Hub
	cache   cache.Service
	history database.Service
}

// NewServer assembles the fiber app around an engine that is already wired.
func NewServer(engine *Engine, hub *Hub, cacheSvc cache.Service, history database.Service, log *zap.Logger) *Server {
	s := &Server{
		App: fiber.New(fiber.Config{
			ServerHeader:  "croupier-authority",
			AppName:       "croupier-authority",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),
		log:     log,
		engine:  engine,
		hub:     hub,
		cache:   cacheSvc,
		history: history,
	}

	s.App.Use(recover.New())
	s.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))
	s.App.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Accept,Authorization,Content-Type",
		MaxAge:       300,
	}))

	s.registerRoutes()

	engine.Subscribe(hub.Broadcast)
	go hub.Run()

	return s
}

func (s *Server) registerRoutes() {
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Get("/game/state", s.gameStateHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/spin", s.spinHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Get("/rounds/recent", s.recentRoundsHandler)
	api.Get("/user/:userId/balance", s.getBalanceHandler)
	api.Post("/user/:userId/balance", s.setBalanceHandler)

	s.App.Get("/ws", websocket.New(s.wsHandler))
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"cache": s.cache.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.ClientCount(),
		},
	}
	if s.history != nil {
		health["database"] = s.history.Health()
	}
	return c.JSON(health)
}

func (s *Server) gameStateHandler(c *fiber.Ctx) error {
	state := s.engine.CurrentRound()
	if state == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no active round"})
	}
	return c.JSON(state)
}

func (s *Server) placeBetHandler(c *fiber.Ctx) error {
	var req BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}
	resp := s.engine.PlaceBet(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) spinHandler(c *fiber.Ctx) error {
	var req SpinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}
	resp := s.engine.RequestSpin(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) cashoutHandler(c *fiber.Ctx) error {
	var req CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" || req.BetID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id and bet_id are required"})
	}
	resp := s.engine.Cashout(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) recentRoundsHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(503).JSON(fiber.Map{"error": "history store not configured"})
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	rounds, err := s.history.RecentRounds(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load rounds"})
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

func (s *Server) getBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	balance, err := s.engine.Balance(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "wallet unavailable"})
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}

func (s *Server) setBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil || body.Balance < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.engine.SetBalance(c.Context(), userID, body.Balance); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to set balance"})
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": body.Balance})
}

// wsHandler speaks the client transport's envelope protocol: commands carry
// a req_id and get a response frame; everything else is broadcast fanout.
func (s *Server) wsHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	client := s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(client)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env struct {
			Type  string          `json:"type"`
			ReqID string          `json:"req_id"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}

		switch env.Type {
		case "place_bet":
			var req BetRequest
			if len(env.Data) > 0 {
				json.Unmarshal(env.Data, &req)
			}
			req.UserID = userID
			resp := s.engine.PlaceBet(req)
			client.Reply(env.ReqID, fiber.Map{
				"success":       resp.Success,
				"bet_id":        resp.BetID,
				"new_committed": resp.NewCommitted,
				"error":         resp.Error,
			})

		case "request_spin":
			resp := s.engine.RequestSpin(SpinRequest{UserID: userID})
			client.Reply(env.ReqID, fiber.Map{
				"success":     resp.Success,
				"pocket":      resp.Pocket,
				"crash_x100":  resp.CrashX100,
				"server_seed": resp.ServerSeed,
				"payouts":     resp.Payouts,
				"new_balance": resp.NewBalance,
				"error":       resp.Error,
			})

		case "cashout":
			var body struct {
				BetID string `json:"bet_id"`
			}
			if len(env.Data) > 0 {
				json.Unmarshal(env.Data, &body)
			}
			resp := s.engine.Cashout(CashoutRequest{UserID: userID, BetID: body.BetID})
			client.Reply(env.ReqID, fiber.Map{
				"success":         resp.Success,
				"multiplier_x100": resp.MultiplierX100,
				"payout":          resp.Payout,
				"new_balance":     resp.NewBalance,
				"error":           resp.Error,
			})

		case "query_balance":
			balance, err := s.engine.Balance(context.Background(), userID)
			if err != nil {
				s.log.Warn("balance query failed", zap.String("user_id", userID), zap.Error(err))
			}
			client.Reply(env.ReqID, fiber.Map{"balance": balance})

		case "ping":
			client.Reply(env.ReqID, fiber.Map{"pong": true})
		}
	}
}
