package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo collection names. The participant joins look up events and
// proposals by these names.
const (
	CollEvents        = "events"
	CollParticipants  = "participants"
	CollProposals     = "proposals"
	CollNotifications = "notifications"
	CollAudit         = "audit_logs"
	CollFeedback      = "feedback"
)

func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	sqldb.SetMaxOpenConns(20)
	sqldb.SetMaxIdleConns(10)
	sqldb.SetConnMaxIdleTime(5 * time.Minute)

	if err := CreateTables(ctx, sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return sqldb, nil
}

// CreateTables creates the users table. Everything else lives in Mongo.
func CreateTables(ctx context.Context, sqldb *sql.DB) error {
	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'citizen',
		profile_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT ''
	);`
	if _, err := sqldb.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("could not create users table: %w", err)
	}
	return nil
}

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	mg, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := mg.Ping(ctx, nil); err != nil {
		_ = mg.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return mg, nil
}

// indexes backs the queries the repositories run. The unique index on
// feedback.participant_id is what makes a second review fail.
var indexes = map[string][]mongo.IndexModel{
	CollParticipants: {
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "archived", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "pass.state", Value: 1}}},
	},
	CollEvents: {
		{Keys: bson.D{{Key: "event_date", Value: 1}}},
		{Keys: bson.D{{Key: "organizer_id", Value: 1}}},
		{Keys: bson.D{{Key: "review_notified", Value: 1}, {Key: "event_date", Value: 1}}},
	},
	CollProposals: {
		{Keys: bson.D{{Key: "organizer_id", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	CollNotifications: {
		{Keys: bson.D{{Key: "viewers.user", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	CollAudit: {
		{Keys: bson.D{{Key: "module", Value: 1}, {Key: "reference_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	},
	CollFeedback: {
		{Keys: bson.D{{Key: "participant_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
	},
}

func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	for coll, ims := range indexes {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, ims); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
