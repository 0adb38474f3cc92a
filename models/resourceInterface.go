package models

func (obj Supplier) GetBusinessId() string {
	return obj.BusinessId
}

func (obj InventoryItem) GetBusinessId() string {
	return obj.BusinessId
}

func (obj Recipe) GetBusinessId() string {
	return obj.BusinessId
}

func (obj RecipeIngredient) GetBusinessId() string {
	return obj.BusinessId
}

func (obj PriceHistoryEntry) GetBusinessId() string {
	return obj.BusinessId
}

func (obj RecipeSnapshot) GetBusinessId() string {
	return obj.BusinessId
}

func (obj Supplier) GetId() int {
	return obj.ID
}

func (obj InventoryItem) GetId() int {
	return obj.ID
}

func (obj Recipe) GetId() int {
	return obj.ID
}

func (obj RecipeIngredient) GetId() int {
	return obj.ID
}
