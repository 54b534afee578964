package models

// Product is the inventory record. ID is assigned externally and never
// generated by the store.
type Product struct {
	ID           int    `json:"productId"`
	Name         string `json:"productName"`
	UnitsInStock int    `json:"unitsInStock"`
}

type UpsertProductRequest struct {
	Name         string `json:"productName" binding:"required,max=100"`
	UnitsInStock int    `json:"unitsInStock" binding:"gte=0"`
}
