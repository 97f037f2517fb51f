package user

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

const usersCollection = "users"

type userDocument struct {
	ID                        string     `bson:"_id"`
	Email                     string     `bson:"email"`
	PasswordHash              string     `bson:"password_hash,omitempty"`
	GoogleID                  string     `bson:"google_id,omitempty"`
	StoriesGeneratedLifetime  int        `bson:"stories_generated_lifetime"`
	StoriesGeneratedThisMonth int        `bson:"stories_generated_this_month"`
	LastMonthlyReset          time.Time  `bson:"last_monthly_reset"`
	SubscriptionStatus        string     `bson:"subscription_status"`
	SubscriptionEndDate       *time.Time `bson:"subscription_end_date,omitempty"`
	ExternalCustomerRef       string     `bson:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef   string     `bson:"external_subscription_ref,omitempty"`
	LastBillingEventAt        *time.Time `bson:"last_billing_event_at,omitempty"`
	Version                   int64      `bson:"version"`
	CreatedAt                 time.Time  `bson:"created_at"`
	UpdatedAt                 time.Time  `bson:"updated_at"`
}

func toDocument(u *User) userDocument {
	return userDocument{
		ID:                        u.ID.String(),
		Email:                     u.Email,
		PasswordHash:              u.PasswordHash,
		GoogleID:                  u.GoogleID,
		StoriesGeneratedLifetime:  u.StoriesGeneratedLifetime,
		StoriesGeneratedThisMonth: u.StoriesGeneratedThisMonth,
		LastMonthlyReset:          u.LastMonthlyReset,
		SubscriptionStatus:        string(u.SubscriptionStatus),
		SubscriptionEndDate:       u.SubscriptionEndDate,
		ExternalCustomerRef:       u.ExternalCustomerRef,
		ExternalSubscriptionRef:   u.ExternalSubscriptionRef,
		LastBillingEventAt:        u.LastBillingEventAt,
		Version:                   u.Version,
		CreatedAt:                 u.CreatedAt,
		UpdatedAt:                 u.UpdatedAt,
	}
}

func (d userDocument) toUser() (*User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &User{
		ID:                        id,
		Email:                     d.Email,
		PasswordHash:              d.PasswordHash,
		GoogleID:                  d.GoogleID,
		StoriesGeneratedLifetime:  d.StoriesGeneratedLifetime,
		StoriesGeneratedThisMonth: d.StoriesGeneratedThisMonth,
		LastMonthlyReset:          d.LastMonthlyReset,
		SubscriptionStatus:        Status(d.SubscriptionStatus),
		SubscriptionEndDate:       d.SubscriptionEndDate,
		ExternalCustomerRef:       d.ExternalCustomerRef,
		ExternalSubscriptionRef:   d.ExternalSubscriptionRef,
		LastBillingEventAt:        d.LastBillingEventAt,
		Version:                   d.Version,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
	}, nil
}

type mongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore returns a Store over the "users" collection.
func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "google_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "external_subscription_ref", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "external_customer_ref", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (s *mongoStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *mongoStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *mongoStore) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"google_id": googleID})
}

func (s *mongoStore) FindBySubscriptionRef(ctx context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"external_subscription_ref": ref})
}

func (s *mongoStore) FindByCustomerRef(ctx context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"external_customer_ref": ref})
}

func (s *mongoStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return doc.toUser()
}

func (s *mongoStore) Create(ctx context.Context, u *User) error {
	doc := toDocument(u)
	doc.Version = 1
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.Version = 1
	return nil
}

func (s *mongoStore) Save(ctx context.Context, u *User) error {
	doc := toDocument(u)
	doc.Version = u.Version + 1
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": u.Version}, doc)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": doc.ID})
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	u.Version = doc.Version
	u.UpdatedAt = doc.UpdatedAt
	return nil
}
