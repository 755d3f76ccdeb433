// Package mcp exposes the action runner as a Model Context Protocol server.
//
// The server speaks JSON-RPC 2.0 over stdio and registers these tools:
//   - run_action: run a saved action over text, optionally with retrieved context
//   - list_actions, save_action, delete_action, move_action, reset_actions:
//     manage the saved action list
//   - list_models: list the models a provider offers
//   - warm_cache: pre-compute embeddings for a notes directory
//   - clear_embeddings_cache: drop cached embeddings
//   - get_status: report providers, cache and database statistics
//
// # Basic Usage
//
//	cfg, _ := config.Load("")
//	srv, err := mcp.NewServer(cfg, logger, metrics.New())
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	return srv.Serve(ctx, os.Stdin, os.Stdout)
//
// # Streaming
//
// When a tools/call request carries a progress token, run_action forwards
// every partial result as a notifications/progress message whose "message"
// field holds the text generated so far. warm_cache reports "done/total notes"
// the same way. Notifications are dropped rather than queued when the client
// falls behind.
//
// # Errors
//
// Bad arguments and missing actions are returned as protocol errors
// (see the ErrorCode constants). Provider failures are tool results with
// isError set, so the client can show them to the user:
//
//	Provider unreachable, check provider URL/server (...)
//
// A cancelled run returns the plain text "cancelled".
package mcp
