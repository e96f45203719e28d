package server

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const sseHeartbeatInterval = 25 * time.Second

// NotificationsConnect attaches the caller to the broadcast notification
// stream. The response never ends; frames are flushed as broadcasts go live
// and end, with comment heartbeats keeping proxies from idling the socket.
func (s *Server) NotificationsConnect(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	client := s.sseChannel.Attach(c.Query("clientId"))
	channel := s.sseChannel

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer channel.DetachClient(client)

		heartbeat := time.NewTicker(sseHeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case frame, ok := <-client.Ch:
				if !ok {
					return
				}
				if _, err := w.Write(frame); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

// NotificationsStats reports listener and live-broadcast counts.
func (s *Server) NotificationsStats(c *fiber.Ctx) error {
	return c.JSON(s.sseChannel.Stats())
}
