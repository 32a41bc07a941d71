// Command seed populates a dev database with a sample document and
// conversation so the sync endpoints have something to work against.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"inkwell/internal/config"
	"inkwell/internal/domain/models"
	"inkwell/internal/repository/postgres"

	"github.com/joho/godotenv"
)

func main() {
	ownerID := flag.String("owner", "seed-user", "owner actor ID for seeded records")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := postgres.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)
	convRepo := postgres.NewConversationRepository(repoConfig)

	doc := &models.Document{
		OwnerID: *ownerID,
		Content: "# Draft article\n\nStart writing here.",
		Status:  models.StatusDraft,
	}
	if err := docRepo.Create(ctx, doc); err != nil {
		log.Fatalf("Failed to seed document: %v", err)
	}
	logger.Info("seeded document", "id", doc.ID, "owner", doc.OwnerID)

	conv := &models.Conversation{
		OwnerID: *ownerID,
		Title:   "Sample conversation",
	}
	if err := convRepo.CreateConversation(ctx, conv); err != nil {
		log.Fatalf("Failed to seed conversation: %v", err)
	}

	messages := []models.Message{
		{ConversationID: conv.ID, LocalID: "seed-1", Role: models.RoleUser, Content: "Draft an intro about tidal power."},
		{ConversationID: conv.ID, LocalID: "seed-2", Role: models.RoleAssistant, Content: "Tidal power harnesses the predictable rise and fall of coastal waters..."},
	}
	for i := range messages {
		if err := convRepo.AppendMessage(ctx, &messages[i]); err != nil {
			log.Fatalf("Failed to seed message: %v", err)
		}
	}
	logger.Info("seeded conversation", "id", conv.ID, "messages", len(messages))
}
