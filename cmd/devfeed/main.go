// Command devfeed runs a development stand-in for the dashboard backend:
// the notification REST API plus a WebSocket endpoint pushing synthetic
// events, so the realtime core can be exercised without production
// services.
package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	addr := os.Getenv("DEVFEED_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	interval := 5 * time.Second
	if v := os.Getenv("DEVFEED_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}

	f := newFeed(logger)
	seed(f)
	go f.generate(interval)

	app := fiber.New()
	registerRoutes(app, f)

	// The WebSocket upgrade uses the raw fasthttp handler, wrapped around
	// the Fiber app since Fiber v3 does not expose *fasthttp.RequestCtx.
	fiberHandler := app.Handler()
	handler := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			handleWS(ctx, f, logger)
			return
		}
		fiberHandler(ctx)
	}

	logger.Info().Str("addr", addr).Dur("interval", interval).Msg("devfeed listening")
	if err := fasthttp.ListenAndServe(addr, handler); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func registerRoutes(app *fiber.App, f *feed) {
	grp := app.Group("/api")

	grp.Get("/notifications", func(c fiber.Ctx) error {
		limit := 0
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		return c.JSON(f.page(limit))
	})

	grp.Post("/notifications/read-all", func(c fiber.Ctx) error {
		f.markAllRead()
		return c.SendStatus(fiber.StatusNoContent)
	})

	grp.Post("/notifications/:id/read", func(c fiber.Ctx) error {
		if !f.markRead(c.Params("id")) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	grp.Delete("/notifications/:id", func(c fiber.Ctx) error {
		if !f.delete(c.Params("id")) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	grp.Get("/status", func(c fiber.Ctx) error {
		page := f.page(0)
		return c.JSON(fiber.Map{
			"notifications": len(page.Records),
			"unread":        page.Unread,
		})
	})
}

func handleWS(ctx *fasthttp.RequestCtx, f *feed, logger zerolog.Logger) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}

	clientID := uuid.New().String()
	err := upgrader.Upgrade(ctx, func(c *websocket.Conn) {
		f.addConn(clientID, c)
		defer f.removeConn(clientID)

		// Drain inbound messages; devfeed just logs them.
		for {
			var evt types.Event
			if err := c.ReadJSON(&evt); err != nil {
				return
			}
			logger.Debug().Str("event", evt.Name).Msg("client message")
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

func seed(f *feed) {
	now := time.Now()
	readAt := now.Add(-time.Hour)
	f.records = []types.Notification{
		{
			ID: uuid.New().String(), Type: "payment", Title: "Payout sent",
			Message: "Your weekly payout of $128.40 is on its way.",
			Category: "payments", Priority: types.PriorityHigh,
			CreatedAt: now.Add(-30 * time.Minute),
		},
		{
			ID: uuid.New().String(), Type: "system", Title: "Welcome",
			Message: "Your dashboard is ready.",
			Category: "system", Priority: types.PriorityLow,
			CreatedAt: now.Add(-2 * time.Hour), Read: true, ReadAt: &readAt,
		},
	}
}
