package infrastructure

import (
	"storefront/internal/service/order/port"
)

// ToPortProduct 将数据库模型转换为目录端口的商品
func ToPortProduct(model *ProductModel) port.Product {
	return port.Product{
		ID:       model.ID,
		Name:     model.Name,
		Price:    model.Price,
		ImageRef: model.ImageRef,
	}
}

// FromPortProduct 将目录商品转换为数据库模型 (用于初始化数据)
func FromPortProduct(p port.Product) *ProductModel {
	return &ProductModel{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageRef: p.ImageRef,
	}
}
