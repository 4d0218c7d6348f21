package portal

import (
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// Credentials authenticate against the portal. They are resolved per call and never stored.
type Credentials struct {
	Email    string
	Password string
}

// Resolve fills each empty field from the configured credentials.
func (c Credentials) Resolve(cfg config.PortalConfig) Credentials {
	if c.Email == "" {
		c.Email = cfg.Email
	}
	if c.Password == "" {
		c.Password = cfg.Password
	}
	return c
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// MarshalLogObject logs the email and only the length of the password.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("email", c.Email)
	enc.AddInt("password_len", len(c.Password))
	return nil
}
