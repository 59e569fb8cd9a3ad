/*
Package log provides structured logging for the kvs server using
zerolog: a global Logger, Init(Config) to configure level/format/output, and
component-scoped child loggers (WithComponent, WithConn, WithFile).

Initializing:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Component loggers carry context through the engine/server/pool without
threading extra parameters:

	engLog := log.WithComponent("engine")
	engLog.Info().Str("dir", dir).Msg("opened store")

	connLog := log.WithConn(connID)
	connLog.Error().Err(err).Msg("frame read failed")
*/
package log
