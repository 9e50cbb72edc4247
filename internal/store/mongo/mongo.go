// Package mongo backs the repositories with MongoDB collections:
// tenants, sso_configs, invitations.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/idframe/idframe/internal/domain/repository"
)

const connectTimeout = 10 * time.Second

// Store wraps a connected client and its database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects and pings the deployment before returning.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo: uri and database are required")
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Tenants() repository.TenantRepository {
	return &tenantRepo{col: s.db.Collection("tenants")}
}

func (s *Store) SSOConfigs() repository.SSOConfigRepository {
	return &ssoConfigRepo{col: s.db.Collection("sso_configs")}
}

func (s *Store) Invitations() repository.InvitationRepository {
	return &invitationRepo{col: s.db.Collection("invitations")}
}

// --- tenants ---

type tenantDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Domain    string    `bson:"domain"` // stored lower-case
	OwnerID   string    `bson:"owner_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type tenantRepo struct {
	col *mongo.Collection
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	var doc tenantDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get tenant: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *tenantRepo) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"domain": strings.ToLower(domain)},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo: count tenants: %w", err)
	}
	return n > 0, nil
}

func (r *tenantRepo) Representative(ctx context.Context) (*repository.Tenant, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var doc tenantDoc
	err := r.col.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: representative tenant: %w", err)
	}
	return doc.toDomain(), nil
}

func (d *tenantDoc) toDomain() *repository.Tenant {
	return &repository.Tenant{
		ID:        d.ID,
		Name:      d.Name,
		Domain:    d.Domain,
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// --- sso configs ---

type ssoConfigDoc struct {
	ID                    string    `bson:"_id"`
	TenantID              string    `bson:"tenant_id"`
	Provider              string    `bson:"provider"`
	ClientID              string    `bson:"client_id"`
	EncryptedClientSecret string    `bson:"encrypted_client_secret"`
	ProviderSubTenantID   string    `bson:"provider_sub_tenant_id,omitempty"`
	Enabled               bool      `bson:"enabled"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

type ssoConfigRepo struct {
	col *mongo.Collection
}

func (r *ssoConfigRepo) GetActive(ctx context.Context, tenantID, provider string) (*repository.TenantSSOConfig, error) {
	filter := bson.M{
		"tenant_id": tenantID,
		"provider":  strings.ToLower(provider),
		"enabled":   true,
	}
	var doc ssoConfigDoc
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get sso config: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ssoConfigRepo) ListActive(ctx context.Context, tenantID string) ([]repository.TenantSSOConfig, error) {
	cur, err := r.col.Find(ctx, bson.M{"tenant_id": tenantID, "enabled": true})
	if err != nil {
		return nil, fmt.Errorf("mongo: list sso configs: %w", err)
	}
	defer cur.Close(ctx)

	var out []repository.TenantSSOConfig
	for cur.Next(ctx) {
		var doc ssoConfigDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode sso config: %w", err)
		}
		out = append(out, *doc.toDomain())
	}
	return out, cur.Err()
}

func (r *ssoConfigRepo) Upsert(ctx context.Context, cfg *repository.TenantSSOConfig) error {
	now := time.Now().UTC()
	filter := bson.M{
		"tenant_id": cfg.TenantID,
		"provider":  strings.ToLower(cfg.Provider),
	}
	update := bson.M{
		"$set": bson.M{
			"client_id":               cfg.ClientID,
			"encrypted_client_secret": cfg.EncryptedClientSecret,
			"provider_sub_tenant_id":  cfg.ProviderSubTenantID,
			"enabled":                 cfg.Enabled,
			"updated_at":              now,
		},
		"$setOnInsert": bson.M{
			"_id":        cfg.ID,
			"created_at": now,
		},
	}
	_, err := r.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert sso config: %w", err)
	}
	return nil
}

func (d *ssoConfigDoc) toDomain() *repository.TenantSSOConfig {
	return &repository.TenantSSOConfig{
		ID:                    d.ID,
		TenantID:              d.TenantID,
		Provider:              d.Provider,
		ClientID:              d.ClientID,
		EncryptedClientSecret: d.EncryptedClientSecret,
		ProviderSubTenantID:   d.ProviderSubTenantID,
		Enabled:               d.Enabled,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

// --- invitations ---

type invitationDoc struct {
	ID        string    `bson:"_id"`
	TenantID  string    `bson:"tenant_id"`
	Email     string    `bson:"email"`
	Roles     []string  `bson:"roles,omitempty"`
	Status    string    `bson:"status"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type invitationRepo struct {
	col *mongo.Collection
}

func (r *invitationRepo) GetByID(ctx context.Context, id string) (*repository.Invitation, error) {
	var doc invitationDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get invitation: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *invitationRepo) Create(ctx context.Context, inv *repository.Invitation) error {
	doc := invitationDoc{
		ID:        inv.ID,
		TenantID:  inv.TenantID,
		Email:     inv.Email,
		Roles:     inv.Roles,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
	_, err := r.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("mongo: create invitation: %w", err)
	}
	return nil
}

func (r *invitationRepo) UpdateStatus(ctx context.Context, id string, from, to repository.InvitationStatus) error {
	// The status filter makes the transition conditional; a concurrent
	// accept/revoke leaves MatchedCount at zero.
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: update invitation status: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish missing from already-transitioned.
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("mongo: update invitation status: %w", err)
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	return nil
}

func (d *invitationDoc) toDomain() *repository.Invitation {
	return &repository.Invitation{
		ID:        d.ID,
		TenantID:  d.TenantID,
		Email:     d.Email,
		Roles:     d.Roles,
		Status:    repository.InvitationStatus(d.Status),
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
