package account

import (
	"context"
	"log"

	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/database"
	"bildoro-server/modules/common/mailer"
	"bildoro-server/modules/common/model"
	"bildoro-server/modules/common/storage"
)

type Service struct {
	db    *database.Client
	store *storage.Client
	mail  *mailer.Service
}

func NewService(db *database.Client, store *storage.Client, mail *mailer.Service) *Service {
	return &Service{db: db, store: store, mail: mail}
}

// SyncUser - auth된 유저의 row를 보장. 신규 생성 시 환영 메일 발송.
func (s *Service) SyncUser(ctx context.Context, user *auth.AuthUser) (*model.User, bool, error) {
	existing, err := s.db.FetchUser(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	cfg := config.GetConfig()
	created, err := s.db.CreateUser(ctx, user.ID, user.Email, user.Username, cfg.FreeTierTokens)
	if err != nil {
		return nil, false, err
	}

	log.Printf("👤 [Account] New user %s created with %d free tokens", user.ID, cfg.FreeTierTokens)
	s.mail.SendWelcome(user.Email, user.Username, cfg.FreeTierTokens)

	return created, true, nil
}

// DeleteAccount - 유저와 레코드 삭제. 스토리지 정리는 best-effort.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	// 스토리지 먼저 - DB row가 사라지면 경로를 못 찾음
	s.store.DeleteUserObjects(ctx, userID)

	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return err
	}

	log.Printf("🗑️ [Account] User %s deleted", userID)
	return nil
}
