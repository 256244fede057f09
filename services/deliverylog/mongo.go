package deliverylog

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pricewatch_backend/services/push"
)

// MongoDB names
const (
	DatabaseName      = "pricewatch"
	ReportsCollection = "delivery_reports"
)

// reportDocument is the persisted shape of one delivery report
type reportDocument struct {
	TriggerID         uint      `bson:"trigger_id"`
	AlertID           uint      `bson:"alert_id"`
	Symbol            string    `bson:"symbol"`
	Attempted         int       `bson:"attempted"`
	Delivered         int       `bson:"delivered"`
	InvalidTokens     []string  `bson:"invalid_tokens,omitempty"`
	TransientFailures []string  `bson:"transient_failures,omitempty"`
	SentAt            time.Time `bson:"sent_at"`
	LoggedAt          time.Time `bson:"logged_at"`
}

// Logger writes delivery reports to MongoDB for offline inspection.
// When MONGODB_URI is unset the logger is disabled and Record is a
// no-op: report logging is best-effort and never blocks delivery.
type Logger struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
}

// NewLogger connects to MongoDB when configured. A missing URI
// disables the logger without error; a failed connection is reported
// but also leaves the logger disabled rather than failing startup.
func NewLogger() *Logger {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		log.Println("MONGODB_URI not set, delivery report log disabled")
		return &Logger{}
	}

	l := &Logger{}
	if err := l.connect(uri); err != nil {
		log.Printf("Delivery report log disabled: %v", err)
	}
	return l
}

// connect establishes the MongoDB connection
func (l *Logger) connect(uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("MongoDB ping failed: %w", err)
	}

	l.mu.Lock()
	l.client = client
	l.database = client.Database(DatabaseName)
	l.isConnected = true
	l.mu.Unlock()

	log.Println("Delivery report log connected to MongoDB")
	return nil
}

// Enabled reports whether the logger has a live connection
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isConnected
}

// Record inserts one delivery report document
func (l *Logger) Record(ctx context.Context, report push.DeliveryReport) error {
	l.mu.RLock()
	connected := l.isConnected
	database := l.database
	l.mu.RUnlock()

	if !connected {
		return nil
	}

	doc := reportDocument{
		TriggerID:         report.TriggerID,
		AlertID:           report.AlertID,
		Symbol:            report.Symbol,
		Attempted:         report.Attempted,
		Delivered:         report.Delivered,
		InvalidTokens:     report.InvalidTokens,
		TransientFailures: report.TransientFailures,
		SentAt:            report.SentAt,
		LoggedAt:          time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := database.Collection(ReportsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert delivery report: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isConnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting MongoDB: %v", err)
	}
	l.isConnected = false
}
