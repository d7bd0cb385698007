package company

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// Company is the tenant that owns licenses. It lives in the surrounding ERP;
// this service only reads it to build the installer snapshot.
type Company struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Username        string          `db:"username" json:"username"`
	PasswordHash    string          `db:"password_hash" json:"-"`
	Phone           sql.NullString  `db:"phone" json:"phone,omitempty"`
	Address         sql.NullString  `db:"address" json:"address,omitempty"`
	LogoURL         sql.NullString  `db:"logo_url" json:"logo_url,omitempty"`
	CurrencySymbol  sql.NullString  `db:"currency_symbol" json:"currency_symbol,omitempty"`
	PagePermissions json.RawMessage `db:"page_permissions" json:"page_permissions,omitempty"`
}
