package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
)

// DocumentStore reads back the extracted text of uploaded documents.
// Upload and format parsing happen in the portal, outside this engine.
type DocumentStore interface {
	GetDocument(ctx context.Context, userID, documentID string) (*models.Document, error)
	SaveDocument(ctx context.Context, doc *models.Document) error
}

// DocumentService is the Mongo-backed document repository.
type DocumentService struct {
	db  *database.MongoDB
	now func() time.Time
}

// NewDocumentService creates a new document service
func NewDocumentService(db *database.MongoDB) *DocumentService {
	return &DocumentService{db: db, now: time.Now}
}

// GetDocument returns the document, or nil when not found.
func (s *DocumentService) GetDocument(ctx context.Context, userID, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.Collection(database.CollectionDocuments).
		FindOne(ctx, bson.M{"userId": userID, "documentId": documentID}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load document %s/%s: %w", userID, documentID, err)
	}
	return &doc, nil
}

// SaveDocument upserts extracted text for a (user, document) pair.
func (s *DocumentService) SaveDocument(ctx context.Context, doc *models.Document) error {
	now := s.now()
	_, err := s.db.Collection(database.CollectionDocuments).UpdateOne(
		ctx,
		bson.M{"userId": doc.UserID, "documentId": doc.DocumentID},
		bson.M{
			"$set": bson.M{
				"kind":      doc.Kind,
				"text":      doc.Text,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s/%s: %w", doc.UserID, doc.DocumentID, err)
	}
	return nil
}
