package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/support-agent/agent"
	"github.com/fabfab/support-agent/api"
	"github.com/fabfab/support-agent/commerce"
	"github.com/fabfab/support-agent/config"
	"github.com/fabfab/support-agent/database"
	"github.com/fabfab/support-agent/embeddings"
	"github.com/fabfab/support-agent/ingestion"
	"github.com/fabfab/support-agent/llm"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address for the HTTP server to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	resolver, ingester, err := buildServices(cfg, pgPool, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(cfg, resolver, ingester, logger),
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("server listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	path := flags.String("file", cfg.DocumentPath, "path to the support document")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	svc := ingestion.NewService(pgPool, embedder, logger, cfg.Embeddings.Dimension)
	logger.Printf("ingesting %s using %s/%s embeddings", *path, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	if err := svc.IngestFile(ctx, *path); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "single question to ask; omit for an interactive session")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	resolver, _, err := buildServices(cfg, pgPool, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	session := agent.NewSession()

	if strings.TrimSpace(*question) != "" {
		printResult(resolver.Resolve(ctx, *question, session))
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nAsk me anything --> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read question: %v", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		printResult(resolver.Resolve(ctx, input, session))
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the ingested support document data. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if _, err := pgPool.Exec(ctx, "TRUNCATE support_chunks, support_documents"); err != nil {
		logger.Fatalf("truncate support tables: %v", err)
	}

	logger.Println("cleared support_documents and support_chunks")
}

func buildServices(cfg config.Config, pgPool *pgxpool.Pool, logger *log.Logger) (*agent.Service, *ingestion.Service, error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	orders := commerce.NewClient(cfg.MagentoBaseURL, cfg.MagentoAdminToken)
	vectors := agent.NewPostgresVectorStore(pgPool)

	resolver := agent.NewService(orders, embedder, vectors, llmClient, logger, agent.Config{TopK: cfg.SearchTopK})
	ingester := ingestion.NewService(pgPool, embedder, logger, cfg.Embeddings.Dimension)

	return resolver, ingester, nil
}

func printResult(result agent.Result) {
	switch result.Type {
	case agent.TypeError:
		fmt.Printf("\nError: %s\n", result.Error)
	case agent.TypeEmpty:
		fmt.Println("\nAnswer:\nI could not find the answer in the provided document.")
	default:
		fmt.Printf("\nAnswer:\n%s\n", result.Answer)
	}
}

func printUsage() {
	fmt.Println("Usage: support-agent <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ingest   Ingest the support document into the vector store (use --file to override the path)")
	fmt.Println("  chat     Ask the agent a question, or start an interactive session")
	fmt.Println("  clear    Remove ingested document data")
}
