package app

import (
	"encoding/hex"
	"time"

	"dypmon/pkg/dyp"
	"dypmon/pkg/framereader"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	if err := app.web.Listen(app.urlParsed.Host); err != nil {
		debug.ErrorLog.Print(err)
	}
}

// dataResponse is the output of the data web handler.
type dataResponse struct {
	Port        string            `json:"port"`
	State       string            `json:"state"`
	Cancelled   bool              `json:"cancelled"`
	Time        time.Time         `json:"time"`
	Raw         string            `json:"raw"`
	Measurement *dyp.Measurement  `json:"measurement"`
	Stats       framereader.Stats `json:"stats"`
}

// HandleData returns the last reading and the counters of the frame reader.
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		r := app.lastReading()
		return ctx.JSON(dataResponse{
			Port:        app.port.Name(),
			State:       app.port.State().String(),
			Cancelled:   app.cancel.IsSet(),
			Time:        r.Time,
			Raw:         hex.EncodeToString(r.Raw),
			Measurement: r.Measurement,
			Stats:       app.reader.Stats(),
		})
	}
}
