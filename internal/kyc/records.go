package kyc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/events"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidLevel  = errors.New("invalid verification level")
	ErrInvalidStatus = errors.New("invalid review status")
)

// requiredDocs lists the document types needed to reach each level.
var requiredDocs = map[int][]string{
	1: {"id_front", "id_back"},
	2: {"proof_of_address"},
	3: {"source_of_funds", "selfie"},
}

// Service manages document submissions and monotonic tier progression.
type Service struct {
	db  *db.Database
	bus *events.Bus
}

// NewService creates the KYC record service.
func NewService(database *db.Database, bus *events.Bus) *Service {
	return &Service{db: database, bus: bus}
}

// RequiredDocs returns the document types required to reach a level.
func RequiredDocs(level int) []string {
	return requiredDocs[level]
}

// SubmitDocument records a document submission for the user's next level.
// Submissions target exactly one level above the current tier.
func (s *Service) SubmitDocument(ctx context.Context, userID, docType string) (*db.KycRecord, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.KycTier >= MaxTier {
		return nil, fmt.Errorf("%w: already at tier %d", ErrInvalidLevel, user.KycTier)
	}

	level := user.KycTier + 1
	if !docRequired(level, docType) {
		return nil, fmt.Errorf("%w: %q is not required for level %d", ErrInvalidLevel, docType, level)
	}

	rec := db.KycRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Level:       level,
		DocType:     docType,
		Status:      db.KycPending,
		SubmittedAt: time.Now(),
	}
	if err := s.db.UpsertKycRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("store kyc record: %w", err)
	}
	return &rec, nil
}

// ReviewDocument applies the verification collaborator's verdict. An approval
// that completes the next level's document set advances the tier; the tier
// never moves down regardless of later rejections.
func (s *Service) ReviewDocument(ctx context.Context, userID string, level int, docType, status string) error {
	if status != db.KycApproved && status != db.KycRejected {
		return ErrInvalidStatus
	}
	if len(requiredDocs[level]) == 0 {
		return ErrInvalidLevel
	}

	if err := s.db.ReviewKycRecord(ctx, userID, level, docType, status); err != nil {
		return fmt.Errorf("review kyc record: %w", err)
	}
	if status != db.KycApproved {
		return nil
	}

	approved, err := s.db.ApprovedDocTypes(ctx, userID, level)
	if err != nil {
		return fmt.Errorf("count approved docs: %w", err)
	}
	for _, dt := range requiredDocs[level] {
		if !approved[dt] {
			return nil // set incomplete, tier unchanged
		}
	}

	if err := s.db.AdvanceUserTier(ctx, userID, level); err != nil {
		return fmt.Errorf("advance tier: %w", err)
	}
	log.Printf(i18n.Get("TierAdvanced"), userID, level)
	if s.bus != nil {
		s.bus.Publish(events.EventTierAdvanced, map[string]any{"user_id": userID, "tier": level})
	}
	return nil
}

// Status summarizes a user's verification progress.
type Status struct {
	Tier      int            `json:"tier"`
	NextLevel int            `json:"next_level,omitempty"`
	Required  []string       `json:"required_docs,omitempty"`
	Records   []db.KycRecord `json:"records"`
}

// StatusFor returns tier, pending requirements and record history.
func (s *Service) StatusFor(ctx context.Context, userID string) (*Status, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	records, err := s.db.ListKycRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list kyc records: %w", err)
	}

	st := &Status{Tier: user.KycTier, Records: records}
	if user.KycTier < MaxTier {
		st.NextLevel = user.KycTier + 1
		st.Required = requiredDocs[st.NextLevel]
	}
	return st, nil
}

func docRequired(level int, docType string) bool {
	for _, dt := range requiredDocs[level] {
		if dt == docType {
			return true
		}
	}
	return false
}
