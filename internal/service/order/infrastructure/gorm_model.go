package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel 对应数据库中的 product 表
type ProductModel struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	Name      string          `gorm:"size:128;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ImageRef  string          `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "product"
}

// StockModel 对应数据库中的 stock 表，每个商品一行
type StockModel struct {
	ProductID int64 `gorm:"primaryKey;autoIncrement:false"`
	Quantity  int   `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockModel) TableName() string {
	return "stock"
}
