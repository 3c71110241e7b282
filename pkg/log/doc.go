/*
Package log provides structured logging for Burrow using zerolog.

It wraps a single global zerolog.Logger, configured once via Init, with
helper constructors that attach the context fields Burrow's own
operations care about: WithComponent for a named subsystem (the CLI's
import and serve commands), WithInstance for an instance id,
WithCollection for an (instance, collection) pair, and WithTxn for a
transaction's (instance, write/read) shape.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	txnLog := log.WithTxn(instanceID, write)
	txnLog.Info().Msg("transaction committed")

Logger is left as the package-level zero value until Init runs; callers
embedding Burrow as a library are expected to call Init during their own
startup, same as they would configure any other zerolog sink.
*/
package log
