// Package app wires the engine's collaborators — store, extractors,
// mapper, resolver, downloader, and orchestrator — into a single
// foreground process that submits one batch per URL and blocks until
// every batch reaches a terminal state or the context is canceled.
package app
