package catalogue

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/port"
)

// MemoryCatalogue 是固定商品表，由配置文件初始化
type MemoryCatalogue struct {
	mu       sync.RWMutex
	products map[int64]port.Product
}

func NewMemoryCatalogue(products ...port.Product) *MemoryCatalogue {
	c := &MemoryCatalogue{products: make(map[int64]port.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *MemoryCatalogue) Lookup(_ context.Context, productID int64) (port.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return port.Product{}, pkgerrors.Wrapf(domain.ErrUnknownProduct, "product %d", productID)
	}
	return p, nil
}

// Put 新增或替换一个商品
func (c *MemoryCatalogue) Put(p port.Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

// GormCatalogue 从 product 表读取商品
type GormCatalogue struct {
	db *gorm.DB
}

func NewGormCatalogue(db *gorm.DB) *GormCatalogue {
	return &GormCatalogue{db: db}
}

// Lookup 使用 GORM 从数据库中查找商品
func (c *GormCatalogue) Lookup(ctx context.Context, productID int64) (port.Product, error) {
	var model infrastructure.ProductModel
	err := c.db.WithContext(ctx).Where("id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return port.Product{}, pkgerrors.Wrapf(domain.ErrUnknownProduct, "product %d", productID)
		}
		return port.Product{}, domain.Infra("lookup product", pkgerrors.Wrapf(err, "product %d", productID))
	}
	// 使用 Mapper 将数据库模型转换为端口模型
	return infrastructure.ToPortProduct(&model), nil
}

// Save 新增或更新商品（初始化数据用）
func (c *GormCatalogue) Save(ctx context.Context, p port.Product) error {
	err := c.db.WithContext(ctx).Save(infrastructure.FromPortProduct(p)).Error
	if err != nil {
		return domain.Infra("save product", pkgerrors.Wrapf(err, "product %d", p.ID))
	}
	return nil
}
