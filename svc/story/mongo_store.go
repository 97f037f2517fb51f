package story

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const storiesCollection = "stories"

type storyDocument struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"user_id"`
	Title            string    `bson:"title"`
	Content          string    `bson:"content"`
	Parameters       Params    `bson:"parameters"`
	AudioGenerations int       `bson:"audio_generations"`
	Version          int64     `bson:"version"`
	CreatedAt        time.Time `bson:"created_at"`
}

type mongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore returns a Store over the "stories" collection.
func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{coll: db.Collection(storiesCollection)}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(storiesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index(),
	})
	if err != nil {
		return fmt.Errorf("failed to create story indexes: %w", err)
	}
	return nil
}

func (s *mongoStore) Create(ctx context.Context, st *Story) error {
	doc := storyDocument{
		ID:               st.ID.String(),
		UserID:           st.UserID.String(),
		Title:            st.Title,
		Content:          st.Content,
		Parameters:       st.Parameters,
		AudioGenerations: st.AudioGenerations,
		Version:          1,
		CreatedAt:        st.CreatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	st.Version = 1
	return nil
}

func (s *mongoStore) FindByID(ctx context.Context, id uuid.UUID) (*Story, error) {
	var doc storyDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query story: %w", err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid story owner %q: %w", doc.UserID, err)
	}
	return &Story{
		ID:               id,
		UserID:           userID,
		Title:            doc.Title,
		Content:          doc.Content,
		Parameters:       doc.Parameters,
		AudioGenerations: doc.AudioGenerations,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
	}, nil
}

func (s *mongoStore) Save(ctx context.Context, st *Story) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": st.ID.String(), "version": st.Version},
		bson.M{
			"$set": bson.M{"audio_generations": st.AudioGenerations},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": st.ID.String()})
		if err != nil {
			return fmt.Errorf("failed to check story: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	st.Version++
	return nil
}
