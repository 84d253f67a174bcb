package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// HandleHealth returns data about the health of myself and the state of the sensor port.
// output example:
//  {"NumGoroutines":9,"NumCPU":4,"HeapAllocatedMB":2,"SysMemoryMB":12,"Version":"1.0.00+20261001",
//   "ProgLang":"go1.21.0","HostName":"raspi","Port":"/dev/ttyUSB0","PortState":"open","MQTT":false}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		healthData := struct {
			NumGoroutines   int
			NumCPU          int
			HeapAllocatedMB uint64
			SysMemoryMB     uint64
			Version         string
			ProgLang        string
			HostName        string
			Time            string
			Port            string
			PortState       string
			Cancelled       bool
			MQTT            bool
		}{
			NumGoroutines:   runtime.NumGoroutine(),
			NumCPU:          runtime.NumCPU(),
			HeapAllocatedMB: bToMb(m.Alloc),
			SysMemoryMB:     bToMb(m.Sys),
			ProgLang:        runtime.Version(),
			Version:         VERSION,
			HostName:        host,
			Time:            time.Now().Format(time.RFC3339),
			Port:            app.port.Name(),
			PortState:       app.port.State().String(),
			Cancelled:       app.cancel.IsSet(),
			MQTT:            app.mqtt.Connected(),
		}

		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}
