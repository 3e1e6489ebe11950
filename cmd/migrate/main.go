package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/anonchat/anonchat-backend/internal/repository"
	"github.com/anonchat/anonchat-backend/pkg/database"
	"github.com/joho/godotenv"
)

// 대화 기록 테이블 생성 (서버 기동 전에 한 번 실행)
func main() {
	// Load .env file
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database successfully!")

	if err := repository.NewConversationArchiveRepository(db).EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create conversation archive:", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anon_conversations").Scan(&count); err != nil {
		log.Fatal("Failed to verify conversation archive:", err)
	}

	fmt.Printf("✅ anon_conversations ready (%d archived conversations)\n", count)
}
