package app

// initDefaultRoutes initializes the applications routes.
//  Each route can be disabled in the webservices section of the config file.
func (app *App) initDefaultRoutes() {
	if app.urlParsed == nil {
		return
	}

	api := app.web.Group("/")
	if app.config.Webserver.Webservices["version"] {
		api.Get("/version", app.HandleVersion())
	}
	if app.config.Webserver.Webservices["health"] {
		api.Get("/health", app.HandleHealth())
	}
	if app.config.Webserver.Webservices["data"] {
		api.Get("/data", app.HandleData())
	}
}
