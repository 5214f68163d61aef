package fx

import (
	"context"
	"fmt"
)

// RateCache is the persistence half of the collaborator; implemented by
// the sqlite storage layer.
type RateCache interface {
	GetRate(currency string, month, year int) (float64, bool, error)
	UpsertRate(currency string, month, year int, rate float64) error
}

// Service satisfies the pipeline's RateProvider contract: cached monthly
// rates with an HTTP fetch on miss.
type Service struct {
	cache  RateCache
	client *Client
}

func NewService(cache RateCache, client *Client) *Service {
	return &Service{cache: cache, client: client}
}

func (s *Service) RateToEUR(ctx context.Context, currency string, month, year int) (float64, bool, error) {
	if currency == "EUR" {
		return 1, true, nil
	}

	if rate, ok, err := s.cache.GetRate(currency, month, year); err != nil {
		return 0, false, err
	} else if ok {
		return rate, true, nil
	}

	rate, err := s.client.MonthRate(ctx, currency, month, year)
	if err != nil {
		// a missing rate leaves sales_eur unset; it never fails the run
		return 0, false, nil
	}
	if err := s.cache.UpsertRate(currency, month, year, rate); err != nil {
		return 0, false, fmt.Errorf("cache rate: %w", err)
	}
	return rate, true, nil
}

// Sync prefetches rates for the trailing n months of one currency.
func (s *Service) Sync(ctx context.Context, currency string, months []MonthYear) (int, error) {
	fetched := 0
	for _, my := range months {
		if _, ok, err := s.cache.GetRate(currency, my.Month, my.Year); err != nil {
			return fetched, err
		} else if ok {
			continue
		}
		rate, err := s.client.MonthRate(ctx, currency, my.Month, my.Year)
		if err != nil {
			return fetched, err
		}
		if err := s.cache.UpsertRate(currency, my.Month, my.Year, rate); err != nil {
			return fetched, err
		}
		fetched++
	}
	return fetched, nil
}

type MonthYear struct {
	Month int
	Year  int
}

// TrailingMonths lists the n months ending at (month, year), oldest first.
func TrailingMonths(month, year, n int) []MonthYear {
	out := make([]MonthYear, 0, n)
	m, y := month, year
	for i := 0; i < n; i++ {
		out = append(out, MonthYear{Month: m, Year: y})
		m--
		if m == 0 {
			m = 12
			y--
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
