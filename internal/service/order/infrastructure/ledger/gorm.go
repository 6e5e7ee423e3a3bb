package ledger

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/port"
)

// errShortage 只在事务内部使用，用来触发回滚
var errShortage = errors.New("insufficient stock")

// GormLedger 是基于关系库 stock 表的库存账本。
// 每个商品用一条带条件的 UPDATE 扣减（quantity >= ?），整个 Reserve 在一个事务内完成，
// 任意商品不足时整体回滚。
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger 创建一个新的 GORM 库存账本
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) Reserve(ctx context.Context, requests []port.StockRequest) ([]port.Shortage, error) {
	reqs, err := normalize(requests)
	if err != nil {
		return nil, err
	}

	var shortages []port.Shortage
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shortages = shortages[:0]
		for _, r := range reqs {
			res := tx.Model(&infrastructure.StockModel{}).
				Where("product_id = ? AND quantity >= ?", r.ProductID, r.Quantity).
				UpdateColumn("quantity", gorm.Expr("quantity - ?", r.Quantity))
			if res.Error != nil {
				return errors.Wrapf(res.Error, "decrement stock of product %d", r.ProductID)
			}
			if res.RowsAffected == 1 {
				continue
			}

			available, err := available(tx, r.ProductID)
			if err != nil {
				return err
			}
			shortages = append(shortages, port.Shortage{ProductID: r.ProductID, Requested: r.Quantity, Available: available})
		}
		if len(shortages) > 0 {
			return errShortage
		}
		return nil
	})

	if errors.Is(err, errShortage) {
		return shortages, nil
	}
	if err != nil {
		return nil, domain.Infra("reserve stock", err)
	}
	return nil, nil
}

func (l *GormLedger) Release(ctx context.Context, requests []port.StockRequest) error {
	reqs, err := normalize(requests)
	if err != nil {
		return err
	}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range reqs {
			res := tx.Model(&infrastructure.StockModel{}).
				Where("product_id = ?", r.ProductID).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", r.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// 商品行被删掉了，重新建一行把库存还回去
				if err := tx.Create(&infrastructure.StockModel{ProductID: r.ProductID, Quantity: r.Quantity}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	return domain.Infra("release stock", err)
}

func (l *GormLedger) Available(ctx context.Context, productID int64) (int, error) {
	q, err := available(l.db.WithContext(ctx), productID)
	if err != nil {
		return 0, domain.Infra("read stock", errors.Wrapf(err, "product %d", productID))
	}
	return q, nil
}

// Set 写入（或覆盖）某个商品的库存，用于初始化数据
func (l *GormLedger) Set(ctx context.Context, productID int64, quantity int) error {
	model := infrastructure.StockModel{ProductID: productID, Quantity: quantity}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.Infra("set stock", errors.Wrapf(err, "product %d", productID))
	}
	return nil
}

// available 读取库存，没有记录的商品视为 0
func available(db *gorm.DB, productID int64) (int, error) {
	var model infrastructure.StockModel
	err := db.Where("product_id = ?", productID).Limit(1).Find(&model).Error
	if err != nil {
		return 0, err
	}
	return model.Quantity, nil
}
