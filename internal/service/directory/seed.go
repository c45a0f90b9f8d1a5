package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// Seed — начальный справочник для демо-стенда и локальной разработки.
type Seed struct {
	Customers []SeedCustomer `yaml:"customers"`
	Shops     []SeedShop     `yaml:"shops"`
	Products  []SeedProduct  `yaml:"products"`
}

// SeedCustomer — клиент; одобренному клиенту открывается счёт с CreditLimitMinor.
type SeedCustomer struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Email            string `yaml:"email"`
	Phone            string `yaml:"phone"`
	Status           string `yaml:"status"`
	CreditLimitMinor int64  `yaml:"credit_limit_minor"`
}

type SeedShop struct {
	ID        string `yaml:"id"`
	ShopName  string `yaml:"shop_name"`
	OwnerName string `yaml:"owner_name"`
	Email     string `yaml:"email"`
	Phone     string `yaml:"phone"`
	Category  string `yaml:"category"`
	Status    string `yaml:"status"`
}

type SeedProduct struct {
	ID         string `yaml:"id"`
	ShopID     string `yaml:"shop_id"`
	Name       string `yaml:"name"`
	Category   string `yaml:"category"`
	PriceMinor int64  `yaml:"price_minor"`
	InStock    *bool  `yaml:"in_stock"`
}

// AccountOpener открывает кредитный счёт клиенту.
type AccountOpener interface {
	Open(ctx context.Context, customerID string, limitMinor int64) (domain.CreditAccount, error)
}

// LoadSeed разбирает YAML-файл справочника.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return Seed{}, nil
		}
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// LoadSeedFile читает справочник с диска.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// ApplySeed загружает справочник. Повторная загрузка не дублирует записи и не меняет открытые счета.
func (s *Service) ApplySeed(ctx context.Context, seed Seed, opener AccountOpener) error {
	for _, sh := range seed.Shops {
		if _, err := s.RegisterShop(ctx, domain.Shop{
			ID:        sh.ID,
			ShopName:  sh.ShopName,
			OwnerName: sh.OwnerName,
			Email:     sh.Email,
			Phone:     sh.Phone,
			Category:  sh.Category,
			Status:    domain.ApprovalStatus(sh.Status),
		}); err != nil {
			return fmt.Errorf("seed shop %q: %w", sh.ID, err)
		}
	}

	for _, p := range seed.Products {
		inStock := true
		if p.InStock != nil {
			inStock = *p.InStock
		}
		if _, err := s.AddProduct(ctx, domain.Product{
			ID:         p.ID,
			ShopID:     p.ShopID,
			Name:       p.Name,
			Category:   p.Category,
			PriceMinor: p.PriceMinor,
			InStock:    inStock,
		}); err != nil {
			return fmt.Errorf("seed product %q: %w", p.ID, err)
		}
	}

	for _, c := range seed.Customers {
		customer, err := s.RegisterCustomer(ctx, domain.Customer{
			ID:     c.ID,
			Name:   c.Name,
			Email:  c.Email,
			Phone:  c.Phone,
			Status: domain.ApprovalStatus(c.Status),
		})
		if err != nil {
			return fmt.Errorf("seed customer %q: %w", c.ID, err)
		}
		if customer.Status != domain.ApprovalStatusApproved || opener == nil {
			continue
		}
		_, err = opener.Open(ctx, customer.ID, c.CreditLimitMinor)
		if err != nil && !errors.Is(err, domain.ErrAccountAlreadyExists) {
			return fmt.Errorf("seed credit account %q: %w", c.ID, err)
		}
	}

	s.logger.WithFields(log.Fields{
		"customers": len(seed.Customers),
		"shops":     len(seed.Shops),
		"products":  len(seed.Products),
	}).Info("directory seed applied")
	return nil
}
