package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// CartLine — позиция корзины. Цена фиксируется в момент первого добавления.
type CartLine struct {
	ProductID      string
	ShopID         string
	ProductName    string
	UnitPriceMinor int64
	Qty            int32
}

// ExtendedMinor — стоимость позиции (цена * количество).
func (l CartLine) ExtendedMinor() int64 {
	return int64(l.Qty) * l.UnitPriceMinor
}

// MaxLineQty — верхняя граница количества в одной позиции.
const MaxLineQty = math.MaxInt32

// Cart — корзина клиента в рамках сессии. ID служит токеном оформления:
// по нему checkout узнаёт, что эта корзина уже была превращена в транзакции.
type Cart struct {
	ID         string
	CustomerID string
	Lines      []CartLine
	// Version — версия сохранённой записи; 0 у корзины, которой ещё нет в хранилище.
	Version    int64
	UpdatedAt  time.Time
}

// NewCart создаёт пустую корзину с новым токеном оформления.
func NewCart(customerID string) Cart {
	return Cart{ID: uuid.NewString(), CustomerID: customerID}
}

// AddItem увеличивает количество существующей позиции или добавляет новую по текущей цене товара.
func (c *Cart) AddItem(p Product, qty int32) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if p.ID == "" {
		return ErrProductRequired
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID {
			next := int64(c.Lines[i].Qty) + int64(qty)
			if next > MaxLineQty {
				return ErrInvalidQuantity
			}
			c.Lines[i].Qty = int32(next)
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID:      p.ID,
		ShopID:         p.ShopID,
		ProductName:    p.Name,
		UnitPriceMinor: p.PriceMinor,
		Qty:            qty,
	})
	return nil
}

// UpdateQuantity применяет delta с полом в 1. Удаление только через RemoveItem.
// Выход за MaxLineQty отклоняется, позиция не меняется.
func (c *Cart) UpdateQuantity(productID string, delta int32) (int32, error) {
	for i := range c.Lines {
		if c.Lines[i].ProductID != productID {
			continue
		}
		next := int64(c.Lines[i].Qty) + int64(delta)
		if next > MaxLineQty {
			return c.Lines[i].Qty, ErrInvalidQuantity
		}
		c.Lines[i].Qty = int32(max(next, 1))
		return c.Lines[i].Qty, nil
	}
	return 0, ErrCartItemNotFound
}

// RemoveItem удаляет позицию; отсутствие позиции не ошибка.
func (c *Cart) RemoveItem(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// Subtotal — сумма позиций, не зависит от порядка добавления.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.ExtendedMinor()
	}
	return total
}

// IsEmpty сообщает, есть ли в корзине позиции.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Shops возвращает магазины корзины в порядке первого появления.
func (c *Cart) Shops() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	shops := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.ShopID]; ok {
			continue
		}
		seen[l.ShopID] = struct{}{}
		shops = append(shops, l.ShopID)
	}
	return shops
}

// LinesByShop группирует позиции по магазину.
func (c *Cart) LinesByShop() map[string][]CartLine {
	grouped := make(map[string][]CartLine)
	for _, l := range c.Lines {
		grouped[l.ShopID] = append(grouped[l.ShopID], l)
	}
	return grouped
}

// Clear очищает корзину и выдаёт новый токен оформления.
func (c *Cart) Clear() {
	c.Lines = nil
	c.ID = uuid.NewString()
}
