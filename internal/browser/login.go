package browser

import (
	"fmt"
	"time"

	"github.com/AlfredBerg/sps-crawler/internal/session"
	"go.uber.org/zap"
)

const (
	usernameField = "#cLogin_dbUsername"
	passwordField = "#cLogin_dbPassword"
	loginButton   = "#buttonLogin"
)

// LoginTimeouts are the successive waits for the login form. The site is
// slow to serve the form right after a cold start.
var LoginTimeouts = []time.Duration{
	10100 * time.Millisecond,
	11100 * time.Millisecond,
	11200 * time.Millisecond,
	9300 * time.Millisecond,
	14600 * time.Millisecond,
	8200 * time.Millisecond,
	7200 * time.Millisecond,
	20 * time.Second,
}

// Login opens the logon base url, waits for the login form with the retry
// timeouts and submits the credentials.
func Login(s Session, logon session.Logon, timeouts []time.Duration, log *zap.Logger) error {
	log.Info("opening connection", zap.String("logon", logon.Name), zap.String("url", logon.URL))

	found := false
	for _, t := range timeouts {
		if err := s.Open(logon.URL); err != nil {
			log.Warn("failed opening logon url", zap.String("url", logon.URL), zap.Error(err))
			continue
		}
		if err := s.WaitForElement(usernameField, t); err == nil {
			found = true
			break
		}
		log.Warn("login element not found, retrying", zap.Duration("timeout", t))
	}
	if !found {
		log.Error("can not find login form, trying anyway", zap.String("url", logon.URL))
	}

	if err := s.SendKeys(usernameField, logon.Username); err != nil {
		return fmt.Errorf("login %s: %w", logon.Name, err)
	}
	if err := s.SendKeys(passwordField, logon.Password); err != nil {
		return fmt.Errorf("login %s: %w", logon.Name, err)
	}
	if err := s.Click(loginButton); err != nil {
		return fmt.Errorf("login %s: %w", logon.Name, err)
	}
	log.Info("connection opened", zap.String("logon", logon.Name))
	return nil
}
