package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/settlement/domain"
	"github.com/wyfcoding/walletledger/pkg/db"
	"gorm.io/gorm"
)

// ObligationPO 义务单持久化对象
type ObligationPO struct {
	gorm.Model
	ObligationID         string                  `gorm:"column:obligation_id;type:varchar(32);uniqueIndex;not null"`
	Type                 domain.ObligationType   `gorm:"column:type;type:tinyint;not null"`
	IssuerID             string                  `gorm:"column:issuer_id;type:varchar(32);index;not null"`
	PayerID              string                  `gorm:"column:payer_id;type:varchar(32);index"`
	PayerEmail           string                  `gorm:"column:payer_email;type:varchar(255);index;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:decimal(32,18);not null"`
	Description          string                  `gorm:"column:description;type:varchar(512)"`
	Status               domain.ObligationStatus `gorm:"column:status;type:tinyint;not null;default:1;index"`
	SettlementMovementID string                  `gorm:"column:settlement_movement_id;type:varchar(32)"`
	SettledAt            *time.Time              `gorm:"column:settled_at"`
}

func (ObligationPO) TableName() string {
	return "obligations"
}

func (po *ObligationPO) ToDomain() *domain.Obligation {
	o := &domain.Obligation{
		ObligationID:         po.ObligationID,
		Type:                 po.Type,
		IssuerID:             po.IssuerID,
		PayerID:              po.PayerID,
		PayerEmail:           po.PayerEmail,
		Amount:               po.Amount,
		Description:          po.Description,
		Status:               po.Status,
		SettlementMovementID: po.SettlementMovementID,
		CreatedAt:            po.CreatedAt.UTC(),
		UpdatedAt:            po.UpdatedAt.UTC(),
	}
	if po.SettledAt != nil {
		at := po.SettledAt.UTC()
		o.SettledAt = &at
	}
	return o
}

// Models 结算相关的表，供 AutoMigrate 使用
func Models() []any {
	return []any{&ObligationPO{}}
}

type obligationRepository struct {
	db *gorm.DB
}

// NewObligationRepository 创建义务单仓储
func NewObligationRepository(gdb *gorm.DB) domain.ObligationRepository {
	return &obligationRepository{db: gdb}
}

func (r *obligationRepository) Create(ctx context.Context, o *domain.Obligation) error {
	po := &ObligationPO{
		ObligationID: o.ObligationID,
		Type:         o.Type,
		IssuerID:     o.IssuerID,
		PayerID:      o.PayerID,
		PayerEmail:   o.PayerEmail,
		Amount:       o.Amount,
		Description:  o.Description,
		Status:       o.Status,
	}
	if err := db.Conn(ctx, r.db).Create(po).Error; err != nil {
		return fmt.Errorf("create obligation %s: %w", o.ObligationID, err)
	}
	o.CreatedAt = po.CreatedAt.UTC()
	o.UpdatedAt = po.UpdatedAt.UTC()
	return nil
}

func (r *obligationRepository) Get(ctx context.Context, obligationID string) (*domain.Obligation, error) {
	var po ObligationPO
	err := db.Conn(ctx, r.db).Where("obligation_id = ?", obligationID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrObligationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get obligation %s: %w", obligationID, err)
	}
	return po.ToDomain(), nil
}

// TransitionStatus 条件更新，并发的第二次状态变更影响 0 行
func (r *obligationRepository) TransitionStatus(ctx context.Context, obligationID string, from, to domain.ObligationStatus, movementID string, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if to == domain.ObligationStatusSettled {
		updates["settlement_movement_id"] = movementID
		updates["settled_at"] = at
	}
	res := db.Conn(ctx, r.db).Model(&ObligationPO{}).
		Where("obligation_id = ? AND status = ?", obligationID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition obligation %s to %s: %w", obligationID, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *obligationRepository) ListIncoming(ctx context.Context, accountID, email string) ([]*domain.Obligation, error) {
	var pos []*ObligationPO
	err := db.Conn(ctx, r.db).
		Where("status = ?", domain.ObligationStatusPending).
		Where(
			r.db.Where("type = ? AND payer_id = ?", domain.ObligationTypeRequest, accountID).
				Or("type = ? AND payer_email = ?", domain.ObligationTypeInvoice, email),
		).
		Order("created_at DESC, id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("list incoming obligations of %s: %w", accountID, err)
	}
	return toDomainList(pos), nil
}

func (r *obligationRepository) ListIssued(ctx context.Context, accountID string) ([]*domain.Obligation, error) {
	var pos []*ObligationPO
	err := db.Conn(ctx, r.db).
		Where("issuer_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("list issued obligations of %s: %w", accountID, err)
	}
	return toDomainList(pos), nil
}

func toDomainList(pos []*ObligationPO) []*domain.Obligation {
	out := make([]*domain.Obligation, 0, len(pos))
	for _, po := range pos {
		out = append(out, po.ToDomain())
	}
	return out
}
