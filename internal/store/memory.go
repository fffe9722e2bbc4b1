package store

import (
	"context"
	"sort"
	"sync"

	"wsbind/pkg/contracts/domain"
)

// MemoryStore is an in-memory Store used by tests and the "memory" storage
// driver. All methods are safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	businesses  map[string]domain.BusinessEntity
	bindings    map[string]domain.WorkshopBinding // workshopCode|businessLicense
	tokens      map[string]domain.IssuedToken     // tokenHash
	revocations map[string]domain.RevocationRecord
	events      []domain.BindingEvent
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:  make(map[string]domain.BusinessEntity),
		bindings:    make(map[string]domain.WorkshopBinding),
		tokens:      make(map[string]domain.IssuedToken),
		revocations: make(map[string]domain.RevocationRecord),
	}
}

func bindingKey(workshopCode, businessLicense string) string {
	return workshopCode + "|" + businessLicense
}

// Business returns the business record, or nil when absent
func (s *MemoryStore) Business(_ context.Context, licenseNumber string) (*domain.BusinessEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if business, ok := s.businesses[licenseNumber]; ok {
		return &business, nil
	}
	return nil, nil
}

// PutBusiness inserts or replaces a business record
func (s *MemoryStore) PutBusiness(_ context.Context, business *domain.BusinessEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[business.LicenseNumber] = *business
	return nil
}

// Binding returns the binding for the pair, or nil when absent
func (s *MemoryStore) Binding(_ context.Context, workshopCode, businessLicense string) (*domain.WorkshopBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if binding, ok := s.bindings[bindingKey(workshopCode, businessLicense)]; ok {
		return &binding, nil
	}
	return nil, nil
}

// ActiveBindingForWorkshop returns the Active binding for the workshop code
// across all businesses, or nil when there is none
func (s *MemoryStore) ActiveBindingForWorkshop(_ context.Context, workshopCode string) (*domain.WorkshopBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, binding := range s.bindings {
		if binding.WorkshopCode == workshopCode && binding.Status == domain.BindingStatusActive {
			b := binding
			return &b, nil
		}
	}
	return nil, nil
}

// ActiveBindingCount counts Active bindings owned by the business
func (s *MemoryStore) ActiveBindingCount(_ context.Context, businessLicense string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, binding := range s.bindings {
		if binding.BusinessLicense == businessLicense && binding.Status == domain.BindingStatusActive {
			count++
		}
	}
	return count, nil
}

// BindingsForBusiness returns the business's bindings sorted by workshop code
func (s *MemoryStore) BindingsForBusiness(_ context.Context, businessLicense string) ([]domain.WorkshopBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.WorkshopBinding
	for _, binding := range s.bindings {
		if binding.BusinessLicense == businessLicense {
			result = append(result, binding)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].WorkshopCode < result[j].WorkshopCode
	})
	return result, nil
}

// CreateBinding inserts a new binding row
func (s *MemoryStore) CreateBinding(_ context.Context, binding *domain.WorkshopBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bindingKey(binding.WorkshopCode, binding.BusinessLicense)
	if _, exists := s.bindings[key]; exists {
		return ErrDuplicateBinding
	}
	s.bindings[key] = *binding
	return nil
}

// UpdateBinding replaces an existing binding row
func (s *MemoryStore) UpdateBinding(_ context.Context, binding *domain.WorkshopBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bindingKey(binding.WorkshopCode, binding.BusinessLicense)
	if _, exists := s.bindings[key]; !exists {
		return ErrBindingNotFound
	}
	s.bindings[key] = *binding
	return nil
}

// DeleteBinding removes the binding row for the pair
func (s *MemoryStore) DeleteBinding(_ context.Context, workshopCode, businessLicense string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bindingKey(workshopCode, businessLicense)
	if _, exists := s.bindings[key]; !exists {
		return ErrBindingNotFound
	}
	delete(s.bindings, key)
	return nil
}

// RecordIssuedToken adds a token to the issued-token index
func (s *MemoryStore) RecordIssuedToken(_ context.Context, issued domain.IssuedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[issued.TokenHash] = issued
	return nil
}

// IssuedToken returns the issued-token record, or nil when absent
func (s *MemoryStore) IssuedToken(_ context.Context, tokenHash string) (*domain.IssuedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if issued, ok := s.tokens[tokenHash]; ok {
		return &issued, nil
	}
	return nil, nil
}

// IssuedTokenHashes lists every token hash issued for the pair
func (s *MemoryStore) IssuedTokenHashes(_ context.Context, workshopCode, businessLicense string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hashes []string
	for hash, issued := range s.tokens {
		if issued.WorkshopCode == workshopCode && issued.BusinessLicense == businessLicense {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

// AddRevocation appends to the revocation set; re-revoking is a no-op
func (s *MemoryStore) AddRevocation(_ context.Context, record domain.RevocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.revocations[record.TokenHash]; !exists {
		s.revocations[record.TokenHash] = record
	}
	return nil
}

// IsRevoked reports whether a token hash is in the revocation set
func (s *MemoryStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, revoked := s.revocations[tokenHash]
	return revoked, nil
}

// AppendAuditEvent appends an event to the audit log
func (s *MemoryStore) AppendAuditEvent(_ context.Context, event domain.BindingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// AuditEvents lists audit events, newest first
func (s *MemoryStore) AuditEvents(_ context.Context, filter AuditFilter) ([]domain.BindingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.BindingEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if filter.WorkshopCode != "" && event.WorkshopCode != filter.WorkshopCode {
			continue
		}
		if filter.BusinessLicense != "" && event.BusinessLicense != filter.BusinessLicense {
			continue
		}
		result = append(result, event)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }
