// Package memory persists conversation history in Postgres, keyed by the
// customer's phone-derived session id. Rows live in the same tables the
// dashboard reads (organizations, leads, messages), so history written
// here shows up in the CRM timeline.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	phonex "github.com/relayne/crmagent/pkg/phone"
)

const defaultRecentLimit = 5

type Config struct {
	DSN          string `split_words:"true" required:"true"`
	Organization string `split_words:"true" default:"default"`
}

type organizationRow struct {
	bun.BaseModel `bun:"table:organizations"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

type leadRow struct {
	bun.BaseModel `bun:"table:leads"`

	ID       string `bun:"id,pk"`
	TenantID string `bun:"tenant_id"`
	Name     string `bun:"name"`
	Phone    string `bun:"phone"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages"`

	ID        string    `bun:"id,pk"`
	LeadID    string    `bun:"lead_id"`
	TenantID  string    `bun:"tenant_id"`
	Role      string    `bun:"role"`
	Content   string    `bun:"content"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()"`
}

// Store reads and writes conversation history. The tenant row and the
// per-phone lead row are found or created lazily on first use.
type Store struct {
	db      *bun.DB
	orgName string
}

func NewStore(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("memory: postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return NewStoreFromDB(db, cfg.Organization), nil
}

// NewStoreFromDB wraps an existing bun handle. Used by tests.
func NewStoreFromDB(db *bun.DB, orgName string) *Store {
	name := strings.TrimSpace(orgName)
	if name == "" {
		name = "default"
	}
	return &Store{db: db, orgName: name}
}

// DB exposes the underlying handle so other components can share the
// connection pool.
func (s *Store) DB() *bun.DB { return s.db }

func MustNew(cfg Config) *Store {
	store, err := NewStore(cfg)
	if err != nil {
		panic(err)
	}
	return store
}

// Append records one message for the session. History is contextual, not
// critical: failures are logged and swallowed so a storage hiccup never
// blocks the conversation.
func (s *Store) Append(ctx context.Context, sessionPhone, role, content string) {
	tenantID, leadID, err := s.tenantAndLead(ctx, sessionPhone)
	if err != nil {
		log.Error().Err(err).Str("session", phonex.Mask(sessionPhone)).Msg("memory append skipped")
		return
	}

	row := &messageRow{
		ID:       uuid.NewString(),
		LeadID:   leadID,
		TenantID: tenantID,
		Role:     normalizeRole(role),
		Content:  content,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		log.Error().Err(err).Str("session", phonex.Mask(sessionPhone)).Msg("memory append failed")
		return
	}
	log.Debug().Str("role", row.Role).Str("session", phonex.Mask(sessionPhone)).Msg("message saved")
}

// Recent renders the last messages for the session, oldest first, as a
// prompt-ready block. On any failure it degrades to an empty-history
// notice.
func (s *Store) Recent(ctx context.Context, sessionPhone string, limit int) string {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	tenantID, leadID, err := s.tenantAndLead(ctx, sessionPhone)
	if err != nil {
		log.Error().Err(err).Str("session", phonex.Mask(sessionPhone)).Msg("memory read failed")
		return noHistory
	}

	var rows []messageRow
	err = s.db.NewSelect().Model(&rows).
		Column("role", "content").
		Where("lead_id = ?", leadID).
		Where("tenant_id = ?", tenantID).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		log.Error().Err(err).Str("session", phonex.Mask(sessionPhone)).Msg("memory read failed")
		return noHistory
	}
	return renderHistory(rows)
}

const noHistory = "No previous conversation history."

func renderHistory(rows []messageRow) string {
	if len(rows) == 0 {
		return noHistory
	}

	var b strings.Builder
	b.WriteString("Recent conversation history (avoid asking for details already given):\n")
	// Rows arrive newest-first from the query; render oldest-first.
	for i := len(rows) - 1; i >= 0; i-- {
		label := "USER"
		if rows[i].Role == "assistant" {
			label = "AGENT"
		}
		fmt.Fprintf(&b, "[%s]: %s\n", label, rows[i].Content)
	}
	return b.String()
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "agent":
		return "assistant"
	default:
		return "user"
	}
}

func (s *Store) tenantAndLead(ctx context.Context, sessionPhone string) (string, string, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return "", "", err
	}
	leadID, err := s.leadID(ctx, sessionPhone, tenantID)
	if err != nil {
		return "", "", err
	}
	return tenantID, leadID, nil
}

func (s *Store) tenantID(ctx context.Context) (string, error) {
	var org organizationRow
	err := s.db.NewSelect().Model(&org).
		Column("id").
		Where("name = ?", s.orgName).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return org.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("memory: look up tenant: %w", err)
	}

	org = organizationRow{ID: uuid.NewString(), Name: s.orgName}
	if _, err := s.db.NewInsert().Model(&org).Exec(ctx); err != nil {
		return "", fmt.Errorf("memory: create tenant: %w", err)
	}
	log.Info().Str("organization", s.orgName).Msg("tenant created")
	return org.ID, nil
}

func (s *Store) leadID(ctx context.Context, sessionPhone, tenantID string) (string, error) {
	var lead leadRow
	err := s.db.NewSelect().Model(&lead).
		Column("id").
		Where("phone = ?", sessionPhone).
		Where("tenant_id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return lead.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("memory: look up lead: %w", err)
	}

	lead = leadRow{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     "WhatsApp customer",
		Phone:    sessionPhone,
	}
	if _, err := s.db.NewInsert().Model(&lead).Exec(ctx); err != nil {
		return "", fmt.Errorf("memory: create lead: %w", err)
	}
	log.Info().Str("session", phonex.Mask(sessionPhone)).Msg("lead created for conversation history")
	return lead.ID, nil
}
