/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the deal lifecycle engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build transition table (built-in dealflow table or YAML pipeline)
  4. Register blocker checks against the in-memory deal-data provider
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: deals.db)
             Use ":memory:" for in-memory database
  -pipeline  Optional YAML pipeline definition. When omitted the
             built-in M&A dealflow table is used.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and the built-in dealflow pipeline
  ./server -db="./data/deals.db"

  # Run with a custom pipeline definition
  ./server -pipeline="./pipelines/acquisition.yaml"

SEE ALSO:
  - api/server.go: Router configuration
  - dealflow/types.go: Built-in transition table
  - factory/pipeline.go: YAML pipeline loader
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/deal-engine/api"
	"github.com/warp/deal-engine/dealflow"
	"github.com/warp/deal-engine/factory"
	"github.com/warp/deal-engine/lifecycle"
	"github.com/warp/deal-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "deals.db", "SQLite database path")
	pipelinePath := flag.String("pipeline", "", "YAML pipeline definition (optional)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Transition table: custom pipeline or the built-in dealflow one
	var table *lifecycle.TransitionTable
	if *pipelinePath != "" {
		table, err = factory.LoadPipeline(*pipelinePath)
		if err != nil {
			log.Fatalf("Failed to load pipeline %s: %v", *pipelinePath, err)
		}
		log.Printf("Loaded pipeline from %s", *pipelinePath)
	} else {
		table = lifecycle.MustTransitionTable(dealflow.StandardTable())
	}

	// Blocker checks read from the in-memory deal-data provider,
	// seeded through the demo endpoints.
	data := dealflow.NewMemoryDealData()
	registry := lifecycle.NewBlockerRegistry()
	if err := dealflow.RegisterStandardChecks(registry, data); err != nil {
		log.Fatalf("Failed to register blocker checks: %v", err)
	}

	engine := lifecycle.NewEngine(table, registry, store)

	handler := api.NewHandler(engine)
	handler.DemoData = data
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
