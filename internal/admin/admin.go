// Package admin manages operator accounts and their audit trail.
package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

var (
	ErrUnknownAccount = errors.New("admin account not found")
	ErrInvalidToken   = errors.New("invalid admin token")
	ErrIPNotAllowed   = errors.New("ip not allowed for admin account")
)

// Accounts reads and writes operator accounts and audit entries
type Accounts struct {
	db *sqlx.DB
}

func NewAccounts(db *sqlx.DB) *Accounts {
	return &Accounts{db: db}
}

// Get retrieves an admin account by phone
func (a *Accounts) Get(ctx context.Context, phone string) (*models.AdminAccount, error) {
	var acc models.AdminAccount
	err := a.db.GetContext(ctx, &acc, `
		SELECT phone, display_name, token_hash, roles, allowed_ips, created_at, updated_at
		FROM admin_accounts WHERE phone = $1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Upsert creates or replaces an account, storing only the bcrypt hash of plainToken
func (a *Accounts) Upsert(ctx context.Context, phone, displayName, plainToken string, roles, allowedIPs []string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainToken), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	if allowedIPs == nil {
		allowedIPs = []string{}
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO admin_accounts (phone, display_name, token_hash, roles, allowed_ips, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (phone) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			token_hash = EXCLUDED.token_hash,
			roles = EXCLUDED.roles,
			allowed_ips = EXCLUDED.allowed_ips,
			updated_at = NOW()
	`, phone, displayName, string(hashed), pq.Array(roles), pq.Array(allowedIPs))
	return err
}

// Authenticate checks phone + token and, when the account restricts it, the caller ip
func (a *Accounts) Authenticate(ctx context.Context, phone, token, ip string) (*models.AdminAccount, error) {
	acc, err := a.Get(ctx, phone)
	if err != nil {
		log.Printf("[ADMIN] Lookup for %s failed: %v", phone, err)
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.TokenHash), []byte(token)) != nil {
		log.Printf("[ADMIN] Token verification failed for %s", phone)
		return nil, ErrInvalidToken
	}
	if !ipAllowed(acc.AllowedIPs, ip) {
		log.Printf("[ADMIN] %s rejected from %s", phone, ip)
		return nil, ErrIPNotAllowed
	}
	return acc, nil
}

// Record appends an audit entry. Failures are logged and returned.
func (a *Accounts) Record(ctx context.Context, adminPhone, ip, route, action string, details map[string]interface{}, success bool) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil || details == nil {
		detailsJSON = []byte("{}")
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO admin_audit (admin_phone, ip, route, action, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, adminPhone, ip, route, action, detailsJSON, success)
	if err != nil {
		log.Printf("[ADMIN] Failed to log admin action %s: %v", action, err)
	}
	return err
}

// Audit returns audit entries newest first, optionally for one admin
func (a *Accounts) Audit(ctx context.Context, adminPhone string, limit, offset int) ([]models.AdminAudit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	logs := []models.AdminAudit{}
	err := a.db.SelectContext(ctx, &logs, `
		SELECT id, admin_phone, ip, route, action, details, success, created_at
		FROM admin_audit
		WHERE ($1 = '' OR admin_phone = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, adminPhone, limit, offset)
	return logs, err
}

// HasRole reports whether acc carries role or super_admin
func HasRole(acc *models.AdminAccount, role string) bool {
	if acc == nil {
		return false
	}
	for _, r := range acc.Roles {
		if r == role || r == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// Roles
const (
	RoleSuperAdmin = "super_admin"
	RoleOperator   = "operator"
)

// empty allow list means any ip
func ipAllowed(allowed []string, ip string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == ip {
			return true
		}
	}
	return false
}
