package auth

import (
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// Policy — какие роли могут вызывать метод. Метод без записи закрыт для всех.
type Policy struct {
	methods map[string][]domain.Role
	public  map[string]struct{}
}

// NewPolicy создаёт пустую политику.
func NewPolicy() *Policy {
	return &Policy{
		methods: make(map[string][]domain.Role),
		public:  make(map[string]struct{}),
	}
}

// Allow разрешает метод перечисленным ролям.
func (p *Policy) Allow(method string, roles ...domain.Role) *Policy {
	p.methods[method] = append(p.methods[method], roles...)
	return p
}

// Public открывает метод без токена (health, reflection).
func (p *Policy) Public(methods ...string) *Policy {
	for _, m := range methods {
		p.public[m] = struct{}{}
	}
	return p
}

// IsPublic сообщает, что метод не требует токена.
func (p *Policy) IsPublic(method string) bool {
	_, ok := p.public[method]
	return ok
}

// Permits проверяет роль для метода.
func (p *Policy) Permits(method string, role domain.Role) bool {
	for _, r := range p.methods[method] {
		if r == role {
			return true
		}
	}
	return false
}
