package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pickupd/internal/config"
	"pickupd/internal/model"
	"pickupd/internal/service"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds a local database with enough players to fill the queue and prints
// a session token for each of them plus one admin token.
func main() {
	cfg, err := config.Load(os.Getenv("PICKUPD_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	players := client.Database(cfg.MongoDatabase).Collection("players")
	auth := service.NewAuthService(cfg.JWTSecret)

	for i, class := range cfg.SlotClasses() {
		player := model.Player{
			ID:               fmt.Sprintf("player-%02d", i+1),
			SteamID:          fmt.Sprintf("7656119800000%04d", i+1),
			Name:             fmt.Sprintf("Player %d", i+1),
			HasAcceptedRules: true,
			Skill:            map[string]int{class: 1 + i%5},
		}

		_, err := players.ReplaceOne(ctx, bson.M{"_id": player.ID}, player, options.Replace().SetUpsert(true))
		if err != nil {
			log.Fatalf("Failed to insert player %s: %v", player.ID, err)
		}

		token, err := auth.IssueToken(player.ID, model.RolePlayer, 0)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("%s (%s)\t%s\n", player.ID, class, token)
	}

	token, err := auth.IssueToken("admin", model.RoleAdmin, 0)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Printf("admin\t%s\n", token)
}
