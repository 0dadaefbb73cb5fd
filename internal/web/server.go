// Package web provides an HTTP status server for the touch-switch daemon.
package web

import (
	"bytes"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/touch-switch/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	app     *fiber.App
	addr    string
	tracker *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		addr:    addr,
		tracker: tracker,
	}

	s.app.Get("/", s.handleIndex())
	s.app.Get("/index.html", s.handleIndex())
	s.app.Get("/index.json", s.handleJSON())
	s.app.Get("/version", s.handleVersion())
	s.app.Get("/health", s.handleHealth())
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.app.Listen(s.addr)
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Test runs a request through the routes without a listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

func (s *Server) handleIndex() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := renderHTML(&buf, s.tracker.Snapshot()); err != nil {
			logrus.WithError(err).Warn("web: render status page")
			return fiber.ErrInternalServerError
		}
		ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return ctx.Send(buf.Bytes())
	}
}

func (s *Server) handleJSON() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return ctx.Send(status.FormatJSON(s.tracker.Snapshot()))
	}
}

func (s *Server) handleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		cfg := s.tracker.Snapshot().Config
		return ctx.JSON(fiber.Map{
			"version":     cfg.Version,
			"description": "touch-switch",
			"hostname":    cfg.Hostname,
		})
	}
}

// handleHealth reports process health. It answers 503 while the broker is
// unreachable.
func (s *Server) handleHealth() fiber.Handler {
	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snap := s.tracker.Snapshot()

		health := struct {
			Status         string `json:"status"`
			MQTTConnected  bool   `json:"mqtt_connected"`
			Ready          bool   `json:"ready"`
			UptimeSeconds  int64  `json:"uptime_seconds"`
			NumGoroutines  int    `json:"num_goroutines"`
			HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
			SysMemoryBytes uint64 `json:"sys_memory_bytes"`
			ProgLang       string `json:"prog_lang"`
			HostName       string `json:"host_name"`
			Time           string `json:"time"`
		}{
			Status:         "ok",
			MQTTConnected:  snap.MQTTConnected,
			Ready:          snap.Ready,
			UptimeSeconds:  int64(snap.Uptime().Seconds()),
			NumGoroutines:  runtime.NumGoroutine(),
			HeapAllocBytes: m.Alloc,
			SysMemoryBytes: m.Sys,
			ProgLang:       runtime.Version(),
			HostName:       host,
			Time:           snap.Now.Format(time.RFC3339),
		}
		code := http.StatusOK
		if !snap.MQTTConnected {
			health.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		return ctx.Status(code).JSON(health)
	}
}
