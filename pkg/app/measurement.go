package app

import (
	"encoding/json"
	"time"

	"dypmon/pkg/dyp"
	"dypmon/pkg/framereader"
	"dypmon/pkg/mqtt"

	"github.com/womat/debug"
)

// Report receives the readings of the frame reader.
// It prints the reading, saves it to app main structure and sends valid measurements to the mqtt broker.
func (app *App) Report(r framereader.Reading) {
	app.console.Report(r)

	app.last.Lock()
	app.last.reading = r
	app.last.Unlock()

	if r.Measurement == nil || !r.Measurement.Valid {
		return
	}

	if app.config.MQTT.Connection == "" || app.config.MQTT.Topic == "" {
		return
	}

	app.published.Lock()
	defer app.published.Unlock()

	if publishDue(app.published.data, *r.Measurement, app.config.MQTT.Interval, app.config.MQTT.Delta) {
		app.sendMQTT(app.config.MQTT.Topic, *r.Measurement)
		app.published.data = *r.Measurement
	}
}

// publishDue checks the measurement by deltaT and delta distance:
// a measurement is published if nothing was published yet, the interval is exceeded
// or the distance changed at least by delta.
func publishDue(last, m dyp.Measurement, interval time.Duration, delta int) bool {
	if last.Time.IsZero() {
		return true
	}

	deltaT := m.Time.Sub(last.Time)
	deltaD := m.Distance - last.Distance
	if deltaD < 0 {
		deltaD = -deltaD
	}

	return deltaT >= interval || (delta > 0 && deltaD >= delta)
}

// sendMQTT send message struct to the mqtt broker.
func (app *App) sendMQTT(topic string, m dyp.Measurement) {
	debug.TraceLog.Printf("prepare mqtt message %v %v", topic, m)

	b, err := json.Marshal(m)
	if err != nil {
		debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
		return
	}

	app.mqtt.Publish(mqtt.Message{
		Qos:      0,
		Retained: true,
		Topic:    topic,
		Payload:  b,
	})
}

// lastReading returns the last reading of the frame reader.
func (app *App) lastReading() framereader.Reading {
	app.last.RLock()
	defer app.last.RUnlock()
	return app.last.reading
}
