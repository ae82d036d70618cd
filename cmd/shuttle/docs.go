// Package main is the entry point for the Shuttle server and CLI.
//
// @title Shuttle API
// @version v1
// @description Shuttle moves company ids between collections in checkpointed, cancellable, undoable background jobs. All endpoints are under `/api/v1`.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
package main
