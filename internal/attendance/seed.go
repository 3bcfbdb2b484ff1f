package attendance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"otpattend/internal/auth"
)

// SeedConfig names the bootstrap admin account.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// DefaultClass is created on first boot so students can register at once.
var DefaultClass = Class{Name: "Default Class", Department: "General", Code: "DEFAULT"}

var defaultSchedule = []struct{ day, start, end string }{
	{"Monday", "09:00", "10:00"},
	{"Tuesday", "09:00", "10:00"},
	{"Wednesday", "09:00", "10:00"},
	{"Thursday", "09:00", "10:00"},
	{"Friday", "09:00", "10:00"},
}

// Seed inserts the admin account and the default class with its weekly
// schedule unless they already exist. Running it again changes nothing.
func (s *Service) Seed(ctx context.Context, cfg SeedConfig) error {
	email := normalizeEmail(cfg.AdminEmail)
	name := cfg.AdminName
	if name == "" {
		name = "Administrator"
	}
	return s.repo.InTx(ctx, func(tx *Repository) error {
		existing, err := tx.GetUser(ctx, email)
		if err != nil {
			return err
		}
		if existing == nil {
			hash, err := auth.HashPassword(cfg.AdminPassword)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			created, err := tx.CreateUserIfAbsent(ctx, User{Email: email, Name: name, Role: auth.RoleAdmin, PasswordHash: hash})
			if err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			if created {
				s.log.Info("seeded admin account", zap.String("email", email))
			}
		}

		class, created, err := tx.CreateClassIfAbsent(ctx, DefaultClass)
		if err != nil {
			return fmt.Errorf("seed default class: %w", err)
		}
		if !created {
			return nil
		}
		for _, slot := range defaultSchedule {
			e, err := newScheduleEntry(class.ID, slot.day, slot.start, slot.end)
			if err != nil {
				return err
			}
			if _, err := tx.AddSchedule(ctx, e); err != nil {
				return fmt.Errorf("seed default schedule: %w", err)
			}
		}
		s.log.Info("seeded default class", zap.Int64("class_id", class.ID), zap.String("class_code", class.Code))
		return nil
	})
}
