// Package log provides structured logging for the proxy using zerolog.
//
// A single global Logger is configured once via Init and every component
// derives a child logger from it with WithComponent, so every line carries
// a "component" field without threading a logger through every call site
// that doesn't otherwise need one.
//
// # Usage
//
//	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
//	log.Info("proxy starting")
//
//	routerLog := log.WithComponent("router")
//	routerLog.Info().Str("strategy", "round_robin").Msg("strategy selected")
//
// Components that already receive a zerolog.Logger explicitly (registry,
// router, executor, health, failover, recovery, commandlog) call
// logger.With().Str("component", name).Logger() directly instead, since
// they're constructed once at startup and passed down rather than reaching
// for the global.
package log
